package validate

import (
	"github.com/pkgaudit/symaudit/internal/dbg"
	"github.com/pkgaudit/symaudit/internal/nupkg"
)

// trackedFile is the per-file working state of one validation pass.
type trackedFile struct {
	file *nupkg.File
	pdb  *nupkg.File

	// binPath is the seekable temp copy of the binary, "" until
	// materialized.
	binPath string

	// debug holds whatever the local probe learned from the binary, even
	// when the symbols themselves are missing. Tier B eligibility depends
	// on it.
	debug *dbg.DebugData
}

// fileIssue pairs a file with its Source Link error text.
type fileIssue struct {
	file   *trackedFile
	errors []string
}

// buckets is the mutable working state of one validation pass. It is owned
// by exactly one pass and never shared; the publisher only ever sees the
// final immutable Outcome.
//
// Invariant: a file appears in at most one of noSourceLink, linkErrors and
// noSymbols, and leaves noSymbols the moment any tier supplies its debug
// data.
type buckets struct {
	// all is the post-satellite-exclusion candidate set.
	all []*trackedFile

	noSourceLink []*trackedFile
	linkErrors   []fileIssue
	noSymbols    map[*trackedFile]struct{}
}

func newBuckets(candidates []Candidate) *buckets {
	b := &buckets{
		noSymbols: make(map[*trackedFile]struct{}),
	}
	for _, c := range candidates {
		b.all = append(b.all, &trackedFile{file: c.File, pdb: c.Pdb})
	}
	return b
}

func (b *buckets) markNoSourceLink(tf *trackedFile) {
	b.noSourceLink = append(b.noSourceLink, tf)
}

func (b *buckets) markLinkErrors(tf *trackedFile, errs []string) {
	b.linkErrors = append(b.linkErrors, fileIssue{file: tf, errors: errs})
}

func (b *buckets) markNoSymbols(tf *trackedFile) {
	b.noSymbols[tf] = struct{}{}
}

// resolve removes a file from the missing-symbols bucket after a tier
// supplied its debug data, and applies the usual source-link checks to the
// recovered data.
func (b *buckets) resolve(tf *trackedFile, data *dbg.DebugData) {
	delete(b.noSymbols, tf)
	tf.debug = data
	b.applySourceLinkChecks(tf, data)
}

// applySourceLinkChecks routes a file with readable debug data into the
// appropriate failure bucket, or none when the Source Link is clean.
func (b *buckets) applySourceLinkChecks(tf *trackedFile, data *dbg.DebugData) {
	switch {
	case !data.HasSourceLink:
		b.markNoSourceLink(tf)
	case len(data.SourceLinkErrors) > 0:
		b.markLinkErrors(tf, data.SourceLinkErrors)
	}
}

// missing returns the still-unresolved files in candidate order, so remote
// tiers and reports are deterministic.
func (b *buckets) missing() []*trackedFile {
	var out []*trackedFile
	for _, tf := range b.all {
		if _, ok := b.noSymbols[tf]; ok {
			out = append(out, tf)
		}
	}
	return out
}
