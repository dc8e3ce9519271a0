package dbg

import (
	"bytes"
	"compress/flate"
	"debug/pe"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Debug directory entry types the reader cares about.
const (
	debugTypeCodeView            = 2
	debugTypeReproducible        = 16
	debugTypeEmbeddedPortablePdb = 17
	debugTypePdbChecksum         = 19
)

const (
	codeViewSignatureRSDS    = 0x53445352 // "RSDS"
	embeddedPdbSignatureMPDB = 0x4244504D // "MPDB"

	imageDirectoryEntryDebug = 6
	debugDirectoryEntrySize  = 28
)

// codeViewRecord is the RSDS record referencing an external PDB.
type codeViewRecord struct {
	GUID    [16]byte
	Age     uint32
	PdbPath string
}

// pdbChecksum is one PDB checksum debug-directory entry.
type pdbChecksum struct {
	Algorithm string
	Checksum  []byte
}

// peDebugInfo is everything the PE debug directory says about a binary's
// symbols.
type peDebugInfo struct {
	CodeView     *codeViewRecord
	Checksums    []pdbChecksum
	Reproducible bool
	// EmbeddedPdb is the decompressed portable PDB image, nil when the
	// binary embeds none.
	EmbeddedPdb []byte
}

// rawDebugDirEntry mirrors IMAGE_DEBUG_DIRECTORY.
type rawDebugDirEntry struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

// readPEDebugInfo parses the debug directory of a PE image.
func readPEDebugInfo(r io.ReaderAt) (*peDebugInfo, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE image: %w", err)
	}
	defer f.Close()

	dir, ok := debugDataDirectory(f)
	if !ok || dir.Size == 0 {
		return &peDebugInfo{}, nil
	}

	offset, ok := rvaToOffset(f, dir.VirtualAddress)
	if !ok {
		return nil, fmt.Errorf("debug directory RVA 0x%x maps to no section", dir.VirtualAddress)
	}

	info := &peDebugInfo{}
	count := int(dir.Size) / debugDirectoryEntrySize
	for i := 0; i < count; i++ {
		var entry rawDebugDirEntry
		raw := make([]byte, debugDirectoryEntrySize)
		if _, err := r.ReadAt(raw, int64(offset)+int64(i)*debugDirectoryEntrySize); err != nil {
			return nil, fmt.Errorf("failed to read debug directory entry %d: %w", i, err)
		}
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &entry); err != nil {
			return nil, err
		}

		if entry.SizeOfData == 0 || entry.SizeOfData > 1<<28 {
			if entry.Type == debugTypeReproducible {
				info.Reproducible = true
			}
			continue
		}

		data := make([]byte, entry.SizeOfData)
		if _, err := r.ReadAt(data, int64(entry.PointerToRawData)); err != nil {
			return nil, fmt.Errorf("failed to read debug entry payload: %w", err)
		}

		switch entry.Type {
		case debugTypeCodeView:
			if cv, err := parseCodeView(data); err == nil {
				info.CodeView = cv
			}
		case debugTypeReproducible:
			info.Reproducible = true
		case debugTypePdbChecksum:
			if cs, err := parsePdbChecksum(data); err == nil {
				info.Checksums = append(info.Checksums, *cs)
			}
		case debugTypeEmbeddedPortablePdb:
			pdbImage, err := decompressEmbeddedPdb(data)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress embedded PDB: %w", err)
			}
			info.EmbeddedPdb = pdbImage
		}
	}

	return info, nil
}

func debugDataDirectory(f *pe.File) (pe.DataDirectory, bool) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if int(oh.NumberOfRvaAndSizes) > imageDirectoryEntryDebug {
			return oh.DataDirectory[imageDirectoryEntryDebug], true
		}
	case *pe.OptionalHeader64:
		if int(oh.NumberOfRvaAndSizes) > imageDirectoryEntryDebug {
			return oh.DataDirectory[imageDirectoryEntryDebug], true
		}
	}
	return pe.DataDirectory{}, false
}

func rvaToOffset(f *pe.File, rva uint32) (uint32, bool) {
	for _, s := range f.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return rva - s.VirtualAddress + s.Offset, true
		}
	}
	return 0, false
}

// parseCodeView decodes an RSDS CodeView record.
func parseCodeView(data []byte) (*codeViewRecord, error) {
	if len(data) < 24 || binary.LittleEndian.Uint32(data) != codeViewSignatureRSDS {
		return nil, fmt.Errorf("not an RSDS CodeView record")
	}

	cv := &codeViewRecord{}
	copy(cv.GUID[:], data[4:20])
	cv.Age = binary.LittleEndian.Uint32(data[20:24])

	path := data[24:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	cv.PdbPath = string(path)
	return cv, nil
}

// parsePdbChecksum decodes a PDB checksum entry: a NUL-terminated algorithm
// name followed by the checksum bytes.
func parsePdbChecksum(data []byte) (*pdbChecksum, error) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i+1 >= len(data) {
		return nil, fmt.Errorf("malformed PDB checksum entry")
	}
	return &pdbChecksum{
		Algorithm: string(data[:i]),
		Checksum:  data[i+1:],
	}, nil
}

// decompressEmbeddedPdb unpacks an MPDB blob (4-byte magic, 4-byte
// uncompressed size, raw deflate stream). Failures wrap
// ErrUnsupportedFormat: a blob that is present but malformed is a
// data-shape problem with the file, not a reader fault.
func decompressEmbeddedPdb(data []byte) ([]byte, error) {
	if len(data) < 8 || binary.LittleEndian.Uint32(data) != embeddedPdbSignatureMPDB {
		return nil, fmt.Errorf("not an embedded portable PDB blob: %w", ErrUnsupportedFormat)
	}
	size := binary.LittleEndian.Uint32(data[4:8])
	if size > 1<<30 {
		return nil, fmt.Errorf("embedded PDB size %d exceeds limit: %w", size, ErrUnsupportedFormat)
	}

	fr := flate.NewReader(bytes.NewReader(data[8:]))
	defer fr.Close()

	out, err := io.ReadAll(io.LimitReader(fr, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnsupportedFormat)
	}
	if uint32(len(out)) != size {
		return nil, fmt.Errorf("embedded PDB truncated: got %d of %d bytes: %w", len(out), size, ErrUnsupportedFormat)
	}
	return out, nil
}

// formatGUID renders a debug-directory GUID in symbol-server form: 32
// uppercase hex characters, mixed-endian per the on-disk layout.
func formatGUID(guid [16]byte) string {
	return fmt.Sprintf("%08X%04X%04X%s",
		binary.LittleEndian.Uint32(guid[0:4]),
		binary.LittleEndian.Uint16(guid[4:6]),
		binary.LittleEndian.Uint16(guid[6:8]),
		strings.ToUpper(hex.EncodeToString(guid[8:16])))
}
