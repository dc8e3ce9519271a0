package dbg

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/jtang613/gopdb/pkg/pdb/msf"
	"github.com/jtang613/gopdb/pkg/pdb/streams"
)

// msfMagic is the MSF 7.0 superblock signature prefix.
var msfMagic = []byte("Microsoft C/C++ MSF 7.00")

const (
	pdbInfoStreamIndex = 1
	sourceLinkStream   = "sourcelink"
)

// isMSFPdb reports whether data starts with the MSF container signature.
func isMSFPdb(data []byte) bool {
	return bytes.HasPrefix(data, msfMagic)
}

// msfResult is what the validator needs from a Windows-style PDB.
type msfResult struct {
	GUID       string
	Age        uint32
	SourceLink []byte
}

// matchesBinary reports whether the PDB's identity matches the binary's
// CodeView record. The age advances each time a PDB is rewritten, so both
// fields must agree.
func (r *msfResult) matchesBinary(cv *codeViewRecord) bool {
	return r.GUID == formatGUID(cv.GUID) && r.Age == cv.Age
}

// readMSFPdb opens an MSF-container PDB and pulls out the identity header
// plus the Source Link named stream, if present.
func readMSFPdb(path string) (*msfResult, error) {
	m, err := msf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnsupportedFormat)
	}
	defer m.Close()

	if m.NumStreams() <= pdbInfoStreamIndex {
		return nil, fmt.Errorf("PDB info stream missing: %w", ErrUnsupportedFormat)
	}

	reader, err := m.StreamReader(pdbInfoStreamIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDB info stream: %w", err)
	}
	info, err := streams.ReadPDBInfo(reader)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnsupportedFormat)
	}

	result := &msfResult{
		GUID: info.GUIDString(),
		Age:  info.Age,
	}

	for name, index := range info.NamedStreams {
		if strings.ToLower(name) != sourceLinkStream {
			continue
		}
		stream, err := m.Stream(int(index))
		if err != nil {
			continue
		}
		data, err := stream.ReadAll()
		if err != nil {
			continue
		}
		result.SourceLink = data
	}

	return result, nil
}

// sniffFile reads the first bytes of a file for format detection.
func sniffFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, len(msfMagic))
	n, _ := f.Read(buf)
	return buf[:n], nil
}
