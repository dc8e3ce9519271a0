package validate

import (
	"bytes"
	"context"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgaudit/symaudit/internal/authenticode"
	"github.com/pkgaudit/symaudit/internal/dbg"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/symbols"
)

func cleanDebugData() *dbg.DebugData {
	return &dbg.DebugData{HasDebugInfo: true, HasSourceLink: true}
}

func noSourceLinkDebugData() *dbg.DebugData {
	return &dbg.DebugData{HasDebugInfo: true}
}

// tempBaseName strips the random temp-file prefix so fakes can key on the
// original entry name.
func tempBaseName(p string) string {
	base := filepath.Base(p)
	if i := strings.Index(base, "-"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// fakeReader serves debug metadata by file name: assemblies answers binary
// probes, pairs answers binary+PDB reads. Unknown PDBs read as an
// unsupported format, unknown binaries as symbol-less.
type fakeReader struct {
	assemblies map[string]*dbg.AssemblyMetadata
	asmErrs    map[string]error
	pairs      map[string]*dbg.DebugData
	pairErrs   map[string]error
}

func (f *fakeReader) ReadAssembly(path string) (*dbg.AssemblyMetadata, error) {
	name := tempBaseName(path)
	if err := f.asmErrs[name]; err != nil {
		return nil, err
	}
	if meta, ok := f.assemblies[name]; ok {
		return meta, nil
	}
	return &dbg.AssemblyMetadata{}, nil
}

func (f *fakeReader) ReadDebugData(pePath, pdbPath string) (*dbg.DebugData, error) {
	name := tempBaseName(pdbPath)
	if err := f.pairErrs[name]; err != nil {
		return nil, err
	}
	if data, ok := f.pairs[name]; ok {
		return data, nil
	}
	return nil, dbg.ErrUnsupportedFormat
}

type fakeInspector struct {
	results map[string]*authenticode.Result
	calls   int
}

func (f *fakeInspector) Inspect(path string) (*authenticode.Result, error) {
	f.calls++
	if r, ok := f.results[tempBaseName(path)]; ok {
		return r, nil
	}
	return &authenticode.Result{Status: authenticode.StatusNotSigned}, nil
}

func vendorSigned() *authenticode.Result {
	return &authenticode.Result{
		Status: authenticode.StatusValid,
		Signatures: []authenticode.Signature{{
			SignerSubject: pkix.Name{
				Organization: []string{"Microsoft Corporation"},
				Locality:     []string{"Redmond"},
				Province:     []string{"Washington"},
				Country:      []string{"US"},
			},
		}},
	}
}

type fakeSource struct {
	payloads map[string][]byte
	keys     []symbols.Key
}

func (f *fakeSource) Fetch(_ context.Context, key symbols.Key) (io.ReadCloser, error) {
	f.keys = append(f.keys, key)
	if payload, ok := f.payloads[key.Path]; ok {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return nil, symbols.ErrNotFound
}

func newTestValidator(reader *fakeReader, inspector *fakeInspector, registry, server *fakeSource) *Validator {
	if reader == nil {
		reader = &fakeReader{}
	}
	if inspector == nil {
		inspector = &fakeInspector{}
	}
	if registry == nil {
		registry = &fakeSource{}
	}
	if server == nil {
		server = &fakeSource{}
	}
	return NewValidator(reader, inspector, registry, server, nil)
}

// snupkgBytes builds a symbol package archive holding the given entries.
func snupkgBytes(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()

	path := nupkg.BuildTestPackage(t, t.TempDir(), entries)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestValidate_NothingToValidate(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"test.nuspec": nupkg.TestNuspec("Empty", "1.0.0"),
		"README.md":   []byte("docs"),
	})

	outcome := newTestValidator(nil, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNothingToValidate, outcome.Result)
	assert.Equal(t, "No files found to validate", outcome.ErrorMessage)
	assert.False(t, outcome.External)
	assert.NotEmpty(t, outcome.RunID)
}

func TestValidate_ColocatedPdbValid(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
		"lib/net6.0/foo.pdb": []byte("sym"),
	})
	reader := &fakeReader{pairs: map[string]*dbg.DebugData{"foo.pdb": cleanDebugData()}}
	registry := &fakeSource{}
	server := &fakeSource{}

	outcome := newTestValidator(reader, nil, registry, server).Validate(context.Background(), pkg)
	assert.Equal(t, ResultValid, outcome.Result)
	assert.Empty(t, outcome.ErrorMessage)
	assert.False(t, outcome.External)

	// Nothing was missing, so no tier is consulted.
	assert.Empty(t, registry.keys)
	assert.Empty(t, server.keys)
}

func TestValidate_EmbeddedSymbolsValid(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	reader := &fakeReader{assemblies: map[string]*dbg.AssemblyMetadata{
		"foo.dll": {DebugData: cleanDebugData()},
	}}

	outcome := newTestValidator(reader, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultValid, outcome.Result)
}

func TestValidate_NoSymbols(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})

	outcome := newTestValidator(nil, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Missing Symbols for:\n\tlib/net6.0/foo.dll")
	assert.False(t, outcome.External)
}

func TestValidate_NoSourceLink(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
		"lib/net6.0/foo.pdb": []byte("sym"),
	})
	reader := &fakeReader{pairs: map[string]*dbg.DebugData{
		"foo.pdb": noSourceLinkDebugData(),
	}}

	outcome := newTestValidator(reader, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSourceLink, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Missing Source Link for:\n\tlib/net6.0/foo.dll")
}

func TestValidate_CorruptEmbeddedSymbolsDegradeToNoSourceLink(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	reader := &fakeReader{asmErrs: map[string]error{
		"foo.dll": fmt.Errorf("bad deflate stream: %w", dbg.ErrUnsupportedFormat),
	}}

	outcome := newTestValidator(reader, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSourceLink, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Missing Source Link for:\n\tlib/net6.0/foo.dll")
}

func TestValidate_TempDirFailure(t *testing.T) {
	// Not parallel: TMPDIR is process-wide.
	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))

	outcome := newTestValidator(nil, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNothingToValidate, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Unable to extract package contents:")
}

func TestValidate_InvalidSourceLink(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
		"lib/net6.0/foo.pdb": []byte("sym"),
	})
	reader := &fakeReader{pairs: map[string]*dbg.DebugData{
		"foo.pdb": {
			HasDebugInfo:     true,
			HasSourceLink:    true,
			SourceLinkErrors: []string{`document URL "ftp://x/*" is not an HTTP(S) URL`},
		},
	}}

	outcome := newTestValidator(reader, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultInvalidSourceLink, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Source Link errors for lib/net6.0/foo.dll:")
}

func TestValidate_UnreadablePdbDegradesToNoSourceLink(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
		"lib/net6.0/foo.pdb": []byte("not a pdb"),
	})

	// The default fake reader answers unknown PDBs with an unsupported
	// format error.
	outcome := newTestValidator(&fakeReader{}, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSourceLink, outcome.Result)
}

func TestValidate_RegistryRecovery(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"test.nuspec":        nupkg.TestNuspec("TestPkg", "1.0.0"),
		".signature.p7s":     nupkg.SignedRepositoryP7S(t, "https://api.nuget.org/v3/index.json"),
		"lib/net6.0/foo.dll": []byte("bin"),
	})

	reader := &fakeReader{pairs: map[string]*dbg.DebugData{"foo.pdb": cleanDebugData()}}
	registry := &fakeSource{payloads: map[string][]byte{
		"testpkg/1.0.0": snupkgBytes(t, map[string][]byte{
			"lib/net6.0/foo.pdb": []byte("sym"),
		}),
	}}
	server := &fakeSource{}

	outcome := newTestValidator(reader, nil, registry, server).Validate(context.Background(), pkg)
	assert.Equal(t, ResultValidExternal, outcome.Result)
	assert.True(t, outcome.External)
	assert.Empty(t, outcome.ErrorMessage)

	require.Len(t, registry.keys, 1)
	assert.Equal(t, "testpkg/1.0.0", registry.keys[0].Path)
	// Everything resolved in tier A; the symbol server is never consulted.
	assert.Empty(t, server.keys)
}

func TestValidate_RegistrySkippedWithoutRepositorySignature(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"test.nuspec":        nupkg.TestNuspec("TestPkg", "1.0.0"),
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	registry := &fakeSource{}

	outcome := newTestValidator(nil, nil, registry, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	assert.Empty(t, registry.keys)
}

func TestValidate_RegistrySkippedForForeignRegistry(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"test.nuspec":        nupkg.TestNuspec("TestPkg", "1.0.0"),
		".signature.p7s":     nupkg.SignedRepositoryP7S(t, "https://registry.example.com/v3/index.json"),
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	registry := &fakeSource{}

	outcome := newTestValidator(nil, nil, registry, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	assert.Empty(t, registry.keys)
}

func TestValidate_SymbolServerRecovery(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})

	const symbolKey = "foo.pdb/497B72F6390A44FC878E5A2D63B6CC4BFFFFFFFF/foo.pdb"
	reader := &fakeReader{
		assemblies: map[string]*dbg.AssemblyMetadata{
			"foo.dll": {DebugData: &dbg.DebugData{
				SymbolKeys: []dbg.SymbolKey{{
					Key:       symbolKey,
					Checksums: []string{"SHA256:dead"},
				}},
			}},
		},
		pairs: map[string]*dbg.DebugData{"foo.pdb": cleanDebugData()},
	}
	inspector := &fakeInspector{results: map[string]*authenticode.Result{
		"foo.dll": vendorSigned(),
	}}
	server := &fakeSource{payloads: map[string][]byte{symbolKey: []byte("sym")}}

	outcome := newTestValidator(reader, inspector, nil, server).Validate(context.Background(), pkg)
	assert.Equal(t, ResultValidExternal, outcome.Result)
	assert.True(t, outcome.External)

	require.Len(t, server.keys, 1)
	assert.Equal(t, symbolKey, server.keys[0].Path)
	assert.Equal(t, []string{"SHA256:dead"}, server.keys[0].Checksums)
}

func TestValidate_SymbolServerSkippedWhenNotVendorSigned(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	reader := &fakeReader{assemblies: map[string]*dbg.AssemblyMetadata{
		"foo.dll": {DebugData: &dbg.DebugData{
			SymbolKeys: []dbg.SymbolKey{{Key: "foo.pdb/AA/foo.pdb"}},
		}},
	}}
	inspector := &fakeInspector{}
	server := &fakeSource{}

	outcome := newTestValidator(reader, inspector, nil, server).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	assert.Equal(t, 1, inspector.calls)
	assert.Empty(t, server.keys)
}

func TestValidate_SymbolServerSkippedWithoutKeys(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
	})
	inspector := &fakeInspector{results: map[string]*authenticode.Result{
		"foo.dll": vendorSigned(),
	}}
	server := &fakeSource{}

	outcome := newTestValidator(nil, inspector, nil, server).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	// No symbol keys were learned, so the vendor check never runs either.
	assert.Zero(t, inspector.calls)
	assert.Empty(t, server.keys)
}

func TestValidate_MixedSeverity(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/a.dll": []byte("bin"),
		"lib/net6.0/a.pdb": []byte("sym"),
		"lib/net6.0/b.dll": []byte("bin"),
	})
	reader := &fakeReader{pairs: map[string]*dbg.DebugData{
		"a.pdb": noSourceLinkDebugData(),
	}}

	outcome := newTestValidator(reader, nil, nil, nil).Validate(context.Background(), pkg)
	assert.Equal(t, ResultNoSymbols, outcome.Result)
	assert.Contains(t, outcome.ErrorMessage, "Missing Source Link for:\n\tlib/net6.0/a.dll")
	assert.Contains(t, outcome.ErrorMessage, "Missing Symbols for:\n\tlib/net6.0/b.dll")
}

func TestValidate_Repeatable(t *testing.T) {
	t.Parallel()

	pkg := openTestPackage(t, map[string][]byte{
		"lib/net6.0/foo.dll": []byte("bin"),
		"lib/net6.0/foo.pdb": []byte("sym"),
	})
	reader := &fakeReader{pairs: map[string]*dbg.DebugData{"foo.pdb": cleanDebugData()}}
	v := newTestValidator(reader, nil, nil, nil)

	first := v.Validate(context.Background(), pkg)
	second := v.Validate(context.Background(), pkg)

	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
	assert.NotEqual(t, first.RunID, second.RunID)
}
