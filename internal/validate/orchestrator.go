package validate

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkgaudit/symaudit/internal/authenticode"
	"github.com/pkgaudit/symaudit/internal/dbg"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/symbols"
)

// DebugReader reads debug metadata out of materialized binaries and symbol
// files.
type DebugReader interface {
	// ReadAssembly reads what the binary alone reveals, embedded symbols
	// included.
	ReadAssembly(path string) (*dbg.AssemblyMetadata, error)
	// ReadDebugData reads a symbol file alongside its binary.
	ReadDebugData(pePath, pdbPath string) (*dbg.DebugData, error)
}

// SignatureInspector extracts and validates a binary's code-signing
// identity.
type SignatureInspector interface {
	Inspect(path string) (*authenticode.Result, error)
}

// ProgressReporter receives pass milestones. Implementations must tolerate
// concurrent passes; the validator calls it from a single goroutine per
// pass.
type ProgressReporter interface {
	OnClassified(candidates int)
	OnFileChecked(filePath string)
	OnRecoveryStart(tier string, missing int)
	OnComplete(outcome Outcome)
}

// NoOpProgressReporter discards all progress events.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnClassified(int)            {}
func (NoOpProgressReporter) OnFileChecked(string)        {}
func (NoOpProgressReporter) OnRecoveryStart(string, int) {}
func (NoOpProgressReporter) OnComplete(Outcome)          {}

// Validator drives one package through classification, local validation,
// tiered remote recovery, and aggregation. It holds no per-pass state and
// may run concurrent passes.
type Validator struct {
	classifier *Classifier
	reader     DebugReader
	inspector  SignatureInspector
	registry   symbols.Source
	server     symbols.Source
	progress   ProgressReporter
}

// NewValidator creates a validator from its collaborators. progress may be
// nil.
func NewValidator(reader DebugReader, inspector SignatureInspector, registry, server symbols.Source, progress ProgressReporter) *Validator {
	if progress == nil {
		progress = NoOpProgressReporter{}
	}
	return &Validator{
		classifier: NewClassifier(),
		reader:     reader,
		inspector:  inspector,
		registry:   registry,
		server:     server,
		progress:   progress,
	}
}

// Validate runs one full validation pass over the package and returns the
// final outcome. The pass never aborts on a single bad file or an
// unreachable tier; an unexpected fault is caught at this level and the
// outcome reflects whatever state is consistent so far.
func (v *Validator) Validate(ctx context.Context, pkg *nupkg.Package) Outcome {
	start := time.Now()
	runID := uuid.NewString()

	outcome := Outcome{Result: ResultPending, RunID: runID}

	tmpDir, err := os.MkdirTemp("", "symaudit-"+runID)
	if err != nil {
		log.Printf("Warning: failed to create temp directory: %v", err)
		outcome.Result = ResultNothingToValidate
		outcome.ErrorMessage = "Unable to extract package contents: " + err.Error()
		outcome.Duration = time.Since(start)
		return outcome
	}
	defer os.RemoveAll(tmpDir)

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Warning: validation pass %s panicked: %v", runID, r)
			}
		}()

		b := newBuckets(v.classifier.Classify(pkg))
		v.progress.OnClassified(len(b.all))

		for _, tf := range b.all {
			v.validateLocal(tf, b, tmpDir)
			v.progress.OnFileChecked(tf.file.Path())
		}

		external := false
		if len(b.noSymbols) > 0 {
			external = v.recoverFromRegistry(ctx, pkg, b, tmpDir) || external
		}
		if len(b.noSymbols) > 0 {
			external = v.recoverFromServer(ctx, b, tmpDir) || external
		}

		result, message := aggregate(b, external)
		outcome.Result = result
		outcome.ErrorMessage = message
		outcome.External = external
	}()

	outcome.Duration = time.Since(start)
	v.progress.OnComplete(outcome)
	return outcome
}

// validateLocal applies exactly one of the two local strategies to a file.
// Every fault is absorbed here: the file lands in the most conservative
// applicable bucket and the pass continues.
func (v *Validator) validateLocal(tf *trackedFile, b *buckets, tmpDir string) {
	binPath, err := v.materialize(tf.file, tmpDir)
	if err != nil {
		log.Printf("Warning: failed to materialize %s: %v", tf.file.Path(), err)
		b.markNoSymbols(tf)
		return
	}
	tf.binPath = binPath

	if tf.pdb != nil {
		v.validateWithPdb(tf, b, tmpDir)
		return
	}
	v.validateEmbedded(tf, b)
}

func (v *Validator) validateWithPdb(tf *trackedFile, b *buckets, tmpDir string) {
	pdbPath, err := v.materialize(tf.pdb, tmpDir)
	if err != nil {
		log.Printf("Warning: failed to materialize %s: %v", tf.pdb.Path(), err)
		b.markNoSymbols(tf)
		return
	}

	data, err := v.reader.ReadDebugData(tf.binPath, pdbPath)
	switch {
	case errors.Is(err, dbg.ErrUnsupportedFormat):
		// The symbol file is present but unreadable. Degrade to "no
		// source link" rather than pretending the symbols are missing.
		b.markNoSourceLink(tf)
		return
	case err != nil:
		log.Printf("Warning: failed to read symbols for %s: %v", tf.file.Path(), err)
		b.markNoSymbols(tf)
		return
	}

	tf.debug = data
	b.applySourceLinkChecks(tf, data)
}

func (v *Validator) validateEmbedded(tf *trackedFile, b *buckets) {
	meta, err := v.reader.ReadAssembly(tf.binPath)
	switch {
	case errors.Is(err, dbg.ErrUnsupportedFormat):
		b.markNoSourceLink(tf)
		return
	case err != nil:
		log.Printf("Warning: failed to probe %s: %v", tf.file.Path(), err)
		b.markNoSymbols(tf)
		return
	}

	tf.debug = meta.DebugData
	if meta.DebugData == nil || !meta.DebugData.HasDebugInfo {
		// No symbols locally. Keys learned from the binary, if any, keep
		// the file eligible for symbol-server recovery.
		b.markNoSymbols(tf)
		return
	}

	b.applySourceLinkChecks(tf, meta.DebugData)
}

// recoverFromRegistry is tier A: fetch the package's companion symbol
// package from the registry and validate matching PDBs out of it. Returns
// whether an external source was used.
func (v *Validator) recoverFromRegistry(ctx context.Context, pkg *nupkg.Package, b *buckets, tmpDir string) bool {
	sig := pkg.RepositorySignature()
	if sig == nil || !symbols.EligibleHost(sig.ServiceIndexHost) {
		return false
	}
	if pkg.ID() == "" || pkg.Version() == "" {
		return false
	}

	v.progress.OnRecoveryStart("registry", len(b.noSymbols))

	rc, err := v.registry.Fetch(ctx, symbols.RegistryKey(pkg.ID(), pkg.Version()))
	if err != nil {
		if !errors.Is(err, symbols.ErrNotFound) {
			log.Printf("Warning: symbol package fetch failed: %v", err)
		}
		return false
	}

	symPkgPath, err := v.materializeStream(rc, tmpDir, "symbols.snupkg")
	rc.Close()
	if err != nil {
		log.Printf("Warning: failed to materialize symbol package: %v", err)
		return false
	}

	symPkg, err := nupkg.Open(symPkgPath)
	if err != nil {
		log.Printf("Warning: failed to open symbol package: %v", err)
		return false
	}
	defer symPkg.Close()

	for _, tf := range b.missing() {
		pdbFile := findSymbolPackagePdb(symPkg, tf.file)
		if pdbFile == nil {
			continue
		}

		pdbPath, err := v.materialize(pdbFile, tmpDir)
		if err != nil {
			log.Printf("Warning: failed to materialize %s: %v", pdbFile.Path(), err)
			continue
		}

		data, err := v.reader.ReadDebugData(tf.binPath, pdbPath)
		if err != nil {
			log.Printf("Warning: failed to read recovered symbols for %s: %v", tf.file.Path(), err)
			continue
		}
		b.resolve(tf, data)
	}

	return true
}

// recoverFromServer is tier B: look up still-missing, vendor-signed
// binaries on the platform symbol server, one symbol key at a time.
func (v *Validator) recoverFromServer(ctx context.Context, b *buckets, tmpDir string) bool {
	missing := b.missing()
	v.progress.OnRecoveryStart("symbol server", len(missing))

	external := false
	for _, tf := range missing {
		if tf.debug == nil || len(tf.debug.SymbolKeys) == 0 {
			continue
		}
		if !v.isVendorSigned(tf) {
			continue
		}

		for _, key := range tf.debug.SymbolKeys {
			rc, err := v.server.Fetch(ctx, symbols.Key{Path: key.Key, Checksums: key.Checksums})
			if err != nil {
				continue
			}

			pdbPath, err := v.materializeStream(rc, tmpDir, path.Base(key.Key))
			rc.Close()
			if err != nil {
				log.Printf("Warning: failed to materialize fetched symbols for %s: %v", tf.file.Path(), err)
				break
			}
			external = true

			data, err := v.reader.ReadDebugData(tf.binPath, pdbPath)
			if err != nil {
				log.Printf("Warning: failed to read fetched symbols for %s: %v", tf.file.Path(), err)
				break
			}
			b.resolve(tf, data)
			break
		}
	}

	return external
}

// isVendorSigned checks the binary's Authenticode identity against the
// platform vendor. Fails closed: any inspector fault means "not the
// vendor".
func (v *Validator) isVendorSigned(tf *trackedFile) bool {
	result, err := v.inspector.Inspect(tf.binPath)
	if err != nil {
		log.Printf("Warning: signature inspection failed for %s: %v", tf.file.Path(), err)
		return false
	}
	if result.Status != authenticode.StatusValid || len(result.Signatures) == 0 {
		return false
	}
	return authenticode.IsPlatformVendor(result.Signatures[0].SignerSubject)
}

// materialize copies a package entry to a seekable temp file. All temp
// files live under the pass's scoped directory and are removed with it.
func (v *Validator) materialize(file *nupkg.File, tmpDir string) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return v.materializeStream(rc, tmpDir, file.Name())
}

func (v *Validator) materializeStream(r io.Reader, tmpDir, name string) (string, error) {
	out, err := os.CreateTemp(tmpDir, "*-"+filepath.Base(name))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// findSymbolPackagePdb locates the PDB for a binary inside a symbol
// package: first by the binary's own path with the extension swapped, then
// by base name anywhere in the archive.
func findSymbolPackagePdb(symPkg *nupkg.Package, bin *nupkg.File) *nupkg.File {
	wantPath := strings.TrimSuffix(bin.Path(), path.Ext(bin.Path())) + ".pdb"
	wantName := strings.TrimSuffix(bin.Name(), path.Ext(bin.Name())) + ".pdb"

	var byName *nupkg.File
	for _, f := range symPkg.AllFiles() {
		if strings.EqualFold(f.Path(), wantPath) {
			return f
		}
		if byName == nil && strings.EqualFold(f.Name(), wantName) {
			byName = f
		}
	}
	return byName
}
