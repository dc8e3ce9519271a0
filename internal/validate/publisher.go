package validate

import (
	"context"
	"log"
	"sync"

	"github.com/pkgaudit/symaudit/internal/nupkg"
)

// PackageOpener reopens the package under validation. The publisher opens a
// fresh handle per pass so that an upstream change (a rewritten package
// file) is picked up on refresh.
type PackageOpener func() (*nupkg.Package, error)

// Publisher owns the externally visible validation state: the current
// verdict and report, plus completion notifications. Observers only ever
// see Pending or one settled outcome; a pass's working state is private to
// the pass.
//
// Overlapping passes are tolerated: each runs on its own bucket state and
// the last pass to start wins the publish, regardless of finish order.
type Publisher struct {
	validator *Validator
	open      PackageOpener

	mu           sync.Mutex
	result       Result
	errorMessage string
	generation   uint64
	subscribers  map[int]chan Outcome
	nextSubID    int

	wg sync.WaitGroup
}

// NewPublisher creates a publisher around a validator and a package source.
func NewPublisher(validator *Validator, open PackageOpener) *Publisher {
	return &Publisher{
		validator:   validator,
		open:        open,
		result:      ResultPending,
		subscribers: make(map[int]chan Outcome),
	}
}

// Result returns the current verdict.
func (p *Publisher) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// ErrorMessage returns the current diagnostic report, "" when there is
// none.
func (p *Publisher) ErrorMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorMessage
}

// Subscribe registers for completion notifications. The returned cancel
// function must be called to release the subscription. Slow subscribers
// miss outcomes rather than blocking the publish step.
func (p *Publisher) Subscribe() (<-chan Outcome, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Outcome, 1)
	p.subscribers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Refresh invalidates the published state and starts a new validation pass.
// The state reads Pending until the pass settles. Safe to call while a
// previous pass is still in flight.
func (p *Publisher) Refresh(ctx context.Context) {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.result = ResultPending
	p.errorMessage = ""
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, gen)
	}()
}

// Wait blocks until all in-flight passes have finished. Intended for
// shutdown and tests.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) run(ctx context.Context, gen uint64) {
	pkg, err := p.open()
	if err != nil {
		log.Printf("Warning: failed to open package for validation: %v", err)
		p.publish(gen, Outcome{
			Result:       ResultNothingToValidate,
			ErrorMessage: "Failed to open package: " + err.Error(),
		})
		return
	}
	defer pkg.Close()

	outcome := p.validator.Validate(ctx, pkg)
	p.publish(gen, outcome)
}

// publish atomically installs a pass outcome and notifies subscribers,
// unless a newer pass has started since this one began.
func (p *Publisher) publish(gen uint64, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return
	}

	p.result = outcome.Result
	p.errorMessage = outcome.ErrorMessage

	for _, ch := range p.subscribers {
		select {
		case ch <- outcome:
		default:
		}
	}
}
