package dbg

import (
	"fmt"
	"os"
)

// Reader reads debug metadata from binaries and symbol files. It is
// stateless and safe for concurrent use.
type Reader struct{}

// NewReader creates a new debug metadata reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadAssembly reads everything the binary itself reveals about its debug
// information. It returns metadata with a nil DebugData when the binary
// references no symbols at all. When an embedded symbol image is present but
// malformed, the error wraps ErrUnsupportedFormat and the caller decides how
// to degrade.
func (r *Reader) ReadAssembly(path string) (*AssemblyMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer f.Close()

	info, err := readPEDebugInfo(f)
	if err != nil {
		return nil, err
	}

	if info.CodeView == nil && info.EmbeddedPdb == nil {
		return &AssemblyMetadata{}, nil
	}

	data := &DebugData{
		SymbolKeys: symbolKeys(info),
	}

	if info.EmbeddedPdb != nil {
		portable, err := parsePortablePdb(info.EmbeddedPdb)
		if err != nil {
			return nil, err
		}
		data.HasDebugInfo = true
		data.HasSourceLink = portable.SourceLink != nil
		if portable.SourceLink != nil {
			data.SourceLinkErrors = validateSourceLink(portable.SourceLink)
		}
	}

	return &AssemblyMetadata{DebugData: data}, nil
}

// ReadDebugData reads a symbol file alongside its binary. pePath supplies
// symbol keys and checksum context; pdbPath is the symbol file in either MSF
// or portable form. Returns ErrUnsupportedFormat (wrapped) when the symbol
// file matches neither format, or when an MSF PDB's identity does not match
// the binary's CodeView record.
func (r *Reader) ReadDebugData(pePath, pdbPath string) (*DebugData, error) {
	data := &DebugData{HasDebugInfo: true}

	// Symbol keys come from the binary, not the PDB. Best-effort: a binary
	// that fails to parse still leaves the PDB checkable.
	var cv *codeViewRecord
	if pePath != "" {
		if f, err := os.Open(pePath); err == nil {
			if info, err := readPEDebugInfo(f); err == nil {
				data.SymbolKeys = symbolKeys(info)
				cv = info.CodeView
			}
			f.Close()
		}
	}

	magic, err := sniffFile(pdbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol file: %w", err)
	}

	switch {
	case isMSFPdb(magic):
		result, err := readMSFPdb(pdbPath)
		if err != nil {
			return nil, err
		}
		if cv != nil && !result.matchesBinary(cv) {
			return nil, fmt.Errorf("symbol file identity %s/%X does not match binary %s/%X: %w",
				result.GUID, result.Age, formatGUID(cv.GUID), cv.Age, ErrUnsupportedFormat)
		}
		data.HasSourceLink = result.SourceLink != nil
		if result.SourceLink != nil {
			data.SourceLinkErrors = validateSourceLink(result.SourceLink)
		}

	case isPortablePdb(magic):
		raw, err := os.ReadFile(pdbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read symbol file: %w", err)
		}
		portable, err := parsePortablePdb(raw)
		if err != nil {
			return nil, err
		}
		data.HasSourceLink = portable.SourceLink != nil
		if portable.SourceLink != nil {
			data.SourceLinkErrors = validateSourceLink(portable.SourceLink)
		}

	default:
		return nil, fmt.Errorf("unrecognized symbol file signature: %w", ErrUnsupportedFormat)
	}

	return data, nil
}
