package nupkg

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// nuspec models the subset of the manifest the validator needs.
type nuspec struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID      string `xml:"id"`
		Version string `xml:"version"`
	} `xml:"metadata"`
}

func parseNuspec(zf *zip.File) (id, version string, err error) {
	rc, err := zf.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open nuspec: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", "", fmt.Errorf("failed to read nuspec: %w", err)
	}

	var spec nuspec
	if err := xml.Unmarshal(data, &spec); err != nil {
		return "", "", fmt.Errorf("failed to parse nuspec: %w", err)
	}

	if spec.Metadata.ID == "" || spec.Metadata.Version == "" {
		return "", "", fmt.Errorf("nuspec missing id or version")
	}
	return spec.Metadata.ID, spec.Metadata.Version, nil
}

// NormalizeVersion applies NuGet version normalization: build metadata is
// dropped, numeric segments lose leading zeros, and a missing patch segment
// is filled with zero. The prerelease label is preserved as written.
func NormalizeVersion(version string) string {
	v := strings.TrimSpace(version)

	// Strip build metadata (+suffix).
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}

	// Split off the prerelease label.
	release := v
	prerelease := ""
	if i := strings.IndexByte(v, '-'); i >= 0 {
		release = v[:i]
		prerelease = v[i:]
	}

	parts := strings.Split(release, ".")
	for i, part := range parts {
		if n, err := strconv.Atoi(part); err == nil {
			parts[i] = strconv.Itoa(n)
		}
	}
	// Pad to major.minor.patch; a 4th (revision) segment is kept only when
	// non-zero, matching NuGet's normalized form.
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if len(parts) == 4 && parts[3] == "0" {
		parts = parts[:3]
	}

	return strings.Join(parts, ".") + prerelease
}
