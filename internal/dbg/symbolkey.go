package dbg

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// portableAgeSuffix is the fixed age component used in symbol-server keys
// for portable PDBs, which have no age counter.
const portableAgeSuffix = "FFFFFFFF"

// symbolKeys derives remote lookup candidates from a binary's debug
// directory. The portable-form key (guid + FFFFFFFF) is listed first for
// deterministic or embedded-PDB binaries since those are produced by the
// portable toolchain; the classic guid+age key follows as a fallback.
func symbolKeys(info *peDebugInfo) []SymbolKey {
	if info == nil || info.CodeView == nil {
		return nil
	}

	name := pdbFileName(info.CodeView.PdbPath)
	if name == "" {
		return nil
	}

	guid := formatGUID(info.CodeView.GUID)
	checksums := formatChecksums(info.Checksums)

	portable := SymbolKey{
		Key:       fmt.Sprintf("%s/%s%s/%s", name, guid, portableAgeSuffix, name),
		Checksums: checksums,
	}
	classic := SymbolKey{
		Key:       fmt.Sprintf("%s/%s%X/%s", name, guid, info.CodeView.Age, name),
		Checksums: checksums,
	}

	if info.Reproducible || info.EmbeddedPdb != nil {
		return []SymbolKey{portable, classic}
	}
	return []SymbolKey{classic, portable}
}

// pdbFileName extracts the lowercased base name from the PDB path recorded
// in the CodeView record. The path is whatever the build machine used, so
// both separator styles occur.
func pdbFileName(pdbPath string) string {
	p := strings.ReplaceAll(pdbPath, `\`, "/")
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return ""
	}
	return strings.ToLower(name)
}

func formatChecksums(checksums []pdbChecksum) []string {
	if len(checksums) == 0 {
		return nil
	}
	out := make([]string, 0, len(checksums))
	for _, cs := range checksums {
		out = append(out, fmt.Sprintf("%s:%s", cs.Algorithm, hex.EncodeToString(cs.Checksum)))
	}
	return out
}
