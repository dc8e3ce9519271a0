package nupkg

import (
	"archive/zip"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

// BuildTestPackage writes a package archive with the given entries and
// returns its path. Entry names use forward slashes; a nuspec entry is just
// another entry (see TestNuspec).
//
// This is the standard fixture helper for every test that needs a real
// package on disk.
func BuildTestPackage(t testing.TB, dir string, entries map[string][]byte) string {
	t.Helper()

	pkgPath := filepath.Join(dir, "test.nupkg")
	f, err := os.Create(pkgPath)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return pkgPath
}

// TestNuspec renders a minimal nuspec manifest.
func TestNuspec(id, version string) []byte {
	return []byte(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>` + id + `</id>
    <version>` + version + `</version>
    <authors>tests</authors>
    <description>test fixture</description>
  </metadata>
</package>`)
}

// SignedRepositoryP7S builds a real PKCS#7 SignedData blob carrying the
// repository V3 service index URL as a signed attribute, the way a
// repository countersignature does. The signing certificate is a throwaway
// self-signed cert.
func SignedRepositoryP7S(t testing.TB, serviceIndexURL string) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "symaudit test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	signed, err := pkcs7.NewSignedData([]byte("package content hash"))
	require.NoError(t, err)

	err = signed.AddSigner(cert, key, pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{{
			Type: oidRepositoryV3ServiceIndexURL,
			Value: asn1.RawValue{
				Class: asn1.ClassUniversal,
				Tag:   asn1.TagIA5String,
				Bytes: []byte(serviceIndexURL),
			},
		}},
	})
	require.NoError(t, err)

	blob, err := signed.Finish()
	require.NoError(t, err)
	return blob
}
