package nupkg

import (
	"encoding/asn1"
	"io"
	"net/url"
	"strings"

	"go.mozilla.org/pkcs7"
)

// signatureEntry is the well-known name of the package signature file.
const signatureEntry = ".signature.p7s"

// oidRepositoryV3ServiceIndexURL identifies the signed attribute carrying the
// V3 service index URL in a NuGet repository (counter)signature.
var oidRepositoryV3ServiceIndexURL = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 131, 2, 1, 2}

// RepositorySignature describes the repository provenance recorded in a
// package's signature file.
type RepositorySignature struct {
	// ServiceIndexURL is the V3 service index the package was published
	// through.
	ServiceIndexURL string
	// ServiceIndexHost is the lowercased host portion of ServiceIndexURL.
	ServiceIndexHost string
}

// readRepositorySignature extracts repository provenance from the package's
// .signature.p7s entry. Best-effort: any parse failure is treated as "no
// repository signature".
func (p *Package) readRepositorySignature() *RepositorySignature {
	for _, zf := range p.reader.File {
		if !strings.EqualFold(normalizeEntryPath(zf.Name), signatureEntry) {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil
		}
		der, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil
		}
		return parseRepositorySignature(der)
	}
	return nil
}

func parseRepositorySignature(der []byte) *RepositorySignature {
	// Confirm the blob is a well-formed SignedData envelope before digging
	// for the repository attribute.
	if _, err := pkcs7.Parse(der); err != nil {
		return nil
	}

	raw := findServiceIndexURL(der)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}

	return &RepositorySignature{
		ServiceIndexURL:  raw,
		ServiceIndexHost: strings.ToLower(u.Hostname()),
	}
}

// findServiceIndexURL walks the DER structure looking for the attribute
// sequence {oid, SET {IA5String url}}. The pkcs7 package does not expose
// signed attributes, so the walk is done directly on the encoding.
func findServiceIndexURL(der []byte) string {
	rest := der
	for len(rest) > 0 {
		var v asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &v)
		if err != nil {
			return ""
		}

		if v.Class == asn1.ClassUniversal && v.Tag == asn1.TagSequence {
			if u := matchServiceIndexAttribute(v.Bytes); u != "" {
				return u
			}
		}
		if v.IsCompound || (v.Class == asn1.ClassContextSpecific) {
			if u := findServiceIndexURL(v.Bytes); u != "" {
				return u
			}
		}
	}
	return ""
}

func matchServiceIndexAttribute(body []byte) string {
	var oid asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(body, &oid)
	if err != nil || !oid.Equal(oidRepositoryV3ServiceIndexURL) {
		return ""
	}

	var values asn1.RawValue
	if _, err := asn1.Unmarshal(rest, &values); err != nil || values.Tag != asn1.TagSet {
		return ""
	}

	var urlValue asn1.RawValue
	if _, err := asn1.Unmarshal(values.Bytes, &urlValue); err != nil {
		return ""
	}
	if urlValue.Tag != asn1.TagIA5String && urlValue.Tag != asn1.TagUTF8String {
		return ""
	}
	return string(urlValue.Bytes)
}
