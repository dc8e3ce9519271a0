// Package dbg reads debugging metadata out of PE binaries and their symbol
// files. It understands the PE debug directory (CodeView, PDB checksums,
// embedded portable PDBs), Microsoft MSF PDBs, and portable PDBs, and
// reports whether a binary's debug information carries usable Source Link
// data.
package dbg

import "errors"

// ErrUnsupportedFormat is returned when a symbol stream is present but does
// not match any PDB format this reader understands. Callers treat it as a
// data-shape problem with the file rather than a fatal condition.
var ErrUnsupportedFormat = errors.New("unsupported or malformed PDB format")

// SymbolKey is one remote lookup candidate for a binary's symbol file.
type SymbolKey struct {
	// Key is the server-relative lookup path, e.g.
	// "foo.pdb/497B72F6390A44FC878E5A2D63B6CC4B1/foo.pdb".
	Key string
	// Checksums holds "ALG:hex" strings for the SymbolChecksum request
	// header. Empty when the binary carries no PDB checksum entries.
	Checksums []string
}

// DebugData is the outcome of reading a binary's debug information.
type DebugData struct {
	// HasDebugInfo reports whether actual symbol data (a PDB) was read, as
	// opposed to only a debug-directory reference to one.
	HasDebugInfo bool
	// HasSourceLink reports whether the symbol data embeds Source Link
	// metadata.
	HasSourceLink bool
	// SourceLinkErrors lists problems found in the Source Link document.
	SourceLinkErrors []string
	// SymbolKeys are remote lookup candidates, most specific first.
	SymbolKeys []SymbolKey
}

// AssemblyMetadata is what can be learned from the binary alone.
type AssemblyMetadata struct {
	// DebugData is nil when the binary references no debug information at
	// all (no debug directory, no CodeView record).
	DebugData *DebugData
}
