package cli

import (
	"log"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/pkgaudit/symaudit/internal/validate"
)

const timeRounding = time.Millisecond

// Declared as a variable to allow mocking in tests.
var timeNow = time.Now

// progressReporter renders a progress bar for the local validation pass and
// log lines for the remote recovery tiers.
type progressReporter struct {
	quiet bool
	bar   *progressbar.ProgressBar
}

// newProgressReporter creates a reporter; quiet disables all output except
// errors.
func newProgressReporter(quiet bool) validate.ProgressReporter {
	if quiet {
		return validate.NoOpProgressReporter{}
	}
	return &progressReporter{}
}

func (p *progressReporter) OnClassified(candidates int) {
	if candidates == 0 {
		return
	}
	log.Printf("Checking %d binaries...", candidates)
	p.bar = progressbar.NewOptions(candidates,
		progressbar.OptionSetDescription("Validating symbols"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progressReporter) OnFileChecked(string) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progressReporter) OnRecoveryStart(tier string, missing int) {
	log.Printf("Recovering %d missing symbol file(s) from %s...", missing, tier)
}

func (p *progressReporter) OnComplete(outcome validate.Outcome) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
