// Package nupkg provides read-only access to NuGet package archives
// (.nupkg and .snupkg): folder enumeration, associated-file lookup, package
// identity from the nuspec manifest, and repository-signature provenance.
package nupkg

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Package is an opened package archive. It is safe for concurrent reads but
// must not be used after Close.
type Package struct {
	path    string
	reader  *zip.Reader
	closer  io.Closer
	id      string
	version string
	repoSig *RepositorySignature
}

// File is a single entry inside a package. Identity is stable for the
// lifetime of the Package.
type File struct {
	pkg *Package
	zf  *zip.File
}

// Folder is a view over all entries under one top-level package folder
// (e.g. "lib" or "runtimes"), including nested subdirectories.
type Folder struct {
	name  string
	files []*File
}

// Open opens a package archive from disk.
func Open(pkgPath string) (*Package, error) {
	f, err := os.Open(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat package: %w", err)
	}

	pkg, err := newPackage(pkgPath, f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	pkg.closer = f
	return pkg, nil
}

// OpenReader opens a package archive from an in-memory or otherwise already
// materialized source. Used for symbol packages fetched over the network.
func OpenReader(r io.ReaderAt, size int64) (*Package, error) {
	return newPackage("", r, size)
}

func newPackage(pkgPath string, r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read package archive: %w", err)
	}

	pkg := &Package{
		path:   pkgPath,
		reader: zr,
	}

	// The nuspec manifest is optional for symbol packages opened from a
	// fetched stream, so a parse failure is not fatal here.
	if manifest := pkg.findNuspec(); manifest != nil {
		id, version, err := parseNuspec(manifest)
		if err == nil {
			pkg.id = strings.ToLower(id)
			pkg.version = NormalizeVersion(version)
		}
	}

	pkg.repoSig = pkg.readRepositorySignature()

	return pkg, nil
}

// Close releases the underlying archive handle, if any.
func (p *Package) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// Path returns the on-disk location of the package, or "" for packages
// opened from a stream.
func (p *Package) Path() string { return p.path }

// ID returns the lowercased package id from the nuspec, or "".
func (p *Package) ID() string { return p.id }

// Version returns the normalized package version from the nuspec, or "".
func (p *Package) Version() string { return p.version }

// RepositorySignature returns the package's repository countersignature
// provenance, or nil if the package is unsigned or carries no repository
// signature.
func (p *Package) RepositorySignature() *RepositorySignature { return p.repoSig }

// Folder resolves a top-level folder by name (case-insensitive). Returns nil
// if the package has no entries under that folder.
func (p *Package) Folder(name string) *Folder {
	prefix := strings.ToLower(name) + "/"

	var files []*File
	for _, zf := range p.reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		clean := normalizeEntryPath(zf.Name)
		if strings.HasPrefix(strings.ToLower(clean), prefix) {
			files = append(files, &File{pkg: p, zf: zf})
		}
	}

	if len(files) == 0 {
		return nil
	}
	return &Folder{name: name, files: files}
}

// AllFiles returns every non-directory entry in the package.
func (p *Package) AllFiles() []*File {
	var files []*File
	for _, zf := range p.reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		files = append(files, &File{pkg: p, zf: zf})
	}
	return files
}

func (p *Package) findNuspec() *zip.File {
	for _, zf := range p.reader.File {
		name := normalizeEntryPath(zf.Name)
		if !strings.Contains(name, "/") && strings.HasSuffix(strings.ToLower(name), ".nuspec") {
			return zf
		}
	}
	return nil
}

// Name returns the folder name as passed to Package.Folder.
func (f *Folder) Name() string { return f.name }

// Files lists every file under the folder, nested directories included.
func (f *Folder) Files() []*File {
	out := make([]*File, len(f.files))
	copy(out, f.files)
	return out
}

// Path returns the forward-slash relative path of the file inside the
// package.
func (f *File) Path() string { return normalizeEntryPath(f.zf.Name) }

// Name returns the base name of the file.
func (f *File) Name() string { return path.Base(f.Path()) }

// Open returns the file content. The stream is not seekable; callers that
// need random access must materialize it first.
func (f *File) Open() (io.ReadCloser, error) {
	rc, err := f.zf.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path(), err)
	}
	return rc, nil
}

// AssociatedFiles returns sibling entries that share this file's directory
// and stem but differ in extension (e.g. the .pdb next to a .dll).
func (f *File) AssociatedFiles() []*File {
	dir := path.Dir(f.Path())
	stem := strings.TrimSuffix(f.Name(), path.Ext(f.Name()))

	var out []*File
	for _, zf := range f.pkg.reader.File {
		if zf == f.zf || zf.FileInfo().IsDir() {
			continue
		}
		p := normalizeEntryPath(zf.Name)
		if path.Dir(p) != dir {
			continue
		}
		base := path.Base(p)
		if strings.EqualFold(strings.TrimSuffix(base, path.Ext(base)), stem) {
			out = append(out, &File{pkg: f.pkg, zf: zf})
		}
	}
	return out
}

// normalizeEntryPath converts zip entry names to clean forward-slash paths.
// Some producers write backslash separators.
func normalizeEntryPath(name string) string {
	return path.Clean(strings.ReplaceAll(name, `\`, "/"))
}
