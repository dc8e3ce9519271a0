// Package authenticode extracts and checks Authenticode signatures from PE
// binaries: the WIN_CERTIFICATE table is located through the security data
// directory and its PKCS#7 payload parsed with go.mozilla.org/pkcs7.
package authenticode

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"go.mozilla.org/pkcs7"
)

const (
	imageDirectoryEntrySecurity = 4
	certTypePKCSSignedData      = 0x0002

	// maxCertTableSize bounds the attribute certificate table read.
	maxCertTableSize = 1 << 24
)

// Status is the outcome of signature validation.
type Status int

const (
	// StatusNotSigned means the binary carries no signature at all.
	StatusNotSigned Status = iota
	// StatusValid means the signature parsed and verified against its
	// embedded certificates.
	StatusValid
	// StatusInvalid means a signature is present but did not verify.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "not signed"
	}
}

// Signature is one parsed signature from the certificate table.
type Signature struct {
	// SignerSubject is the subject of the signing certificate.
	SignerSubject pkix.Name
}

// Result is the outcome of inspecting one binary.
type Result struct {
	Status     Status
	Signatures []Signature
}

// Inspector reads Authenticode signatures from PE files on disk. Stateless;
// safe for concurrent use.
type Inspector struct{}

// NewInspector creates a new signature inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect parses and validates the binary's signature table. A binary with
// no certificate table yields StatusNotSigned and no error; malformed
// signature data is an error.
func (i *Inspector) Inspect(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer f.Close()

	pf, err := pe.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE image: %w", err)
	}
	defer pf.Close()

	dir, ok := securityDirectory(pf)
	if !ok || dir.Size == 0 {
		return &Result{Status: StatusNotSigned}, nil
	}
	if dir.Size > maxCertTableSize {
		return nil, fmt.Errorf("certificate table size %d exceeds limit", dir.Size)
	}

	// For the security directory, VirtualAddress is a file offset.
	table := make([]byte, dir.Size)
	if _, err := f.ReadAt(table, int64(dir.VirtualAddress)); err != nil {
		return nil, fmt.Errorf("failed to read certificate table: %w", err)
	}

	result := &Result{Status: StatusValid}
	offset := 0
	for offset+8 <= len(table) {
		length := binary.LittleEndian.Uint32(table[offset:])
		certType := binary.LittleEndian.Uint16(table[offset+6:])
		if length < 8 || int(length) > len(table)-offset {
			return nil, fmt.Errorf("malformed WIN_CERTIFICATE entry at offset %d", offset)
		}

		if certType == certTypePKCSSignedData {
			sig, valid, err := parseSignedData(table[offset+8 : offset+int(length)])
			if err != nil {
				return nil, err
			}
			result.Signatures = append(result.Signatures, *sig)
			if !valid {
				result.Status = StatusInvalid
			}
		}

		// Entries are 8-byte aligned.
		offset += int((length + 7) &^ 7)
	}

	if len(result.Signatures) == 0 {
		result.Status = StatusNotSigned
	}
	return result, nil
}

func parseSignedData(der []byte) (*Signature, bool, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse signature: %w", err)
	}

	signer := p7.GetOnlySigner()
	if signer == nil {
		signer = firstCertificate(p7)
	}
	if signer == nil {
		return nil, false, fmt.Errorf("signature carries no signing certificate")
	}

	// Verification here covers the signature over the signed content; full
	// chain building to a trust root is out of scope.
	valid := p7.Verify() == nil

	return &Signature{SignerSubject: signer.Subject}, valid, nil
}

func firstCertificate(p7 *pkcs7.PKCS7) *x509.Certificate {
	if len(p7.Certificates) == 0 {
		return nil
	}
	return p7.Certificates[0]
}

func securityDirectory(f *pe.File) (pe.DataDirectory, bool) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if int(oh.NumberOfRvaAndSizes) > imageDirectoryEntrySecurity {
			return oh.DataDirectory[imageDirectoryEntrySecurity], true
		}
	case *pe.OptionalHeader64:
		if int(oh.NumberOfRvaAndSizes) > imageDirectoryEntrySecurity {
			return oh.DataDirectory[imageDirectoryEntrySecurity], true
		}
	}
	return pe.DataDirectory{}, false
}

// Platform vendor identity: the signing certificate subject must carry
// exactly these organization, locality, state, and country values.
const (
	vendorOrganization = "Microsoft Corporation"
	vendorLocality     = "Redmond"
	vendorState        = "Washington"
	vendorCountry      = "US"
)

// IsPlatformVendor reports whether a signing-certificate subject identifies
// the platform vendor. Comparison is case-insensitive and exact per field.
func IsPlatformVendor(subject pkix.Name) bool {
	return containsFold(subject.Organization, vendorOrganization) &&
		containsFold(subject.Locality, vendorLocality) &&
		containsFold(subject.Province, vendorState) &&
		containsFold(subject.Country, vendorCountry)
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
