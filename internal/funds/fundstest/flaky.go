// Package fundstest provides funds.Mover doubles for tests.
package fundstest

import (
	"context"
	"sync"

	"github.com/cleared-dev/pennywise/internal/funds"
	"github.com/cleared-dev/pennywise/internal/model"
)

// Flaky wraps a Mover with scripted failures. Each call consumes the next
// scripted error; a nil entry or an exhausted script passes the call
// through. Calls are counted either way.
type Flaky struct {
	next funds.Mover

	mu     sync.Mutex
	script []error
	calls  []model.TransferRequest
}

// NewFlaky wraps next with the given failure script.
func NewFlaky(next funds.Mover, script ...error) *Flaky {
	return &Flaky{next: next, script: script}
}

// SubmitTransfer implements funds.Mover.
func (f *Flaky) SubmitTransfer(ctx context.Context, req model.TransferRequest) (model.TransferReceipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var err error
	if len(f.script) > 0 {
		err, f.script = f.script[0], f.script[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return model.TransferReceipt{}, err
	}
	return f.next.SubmitTransfer(ctx, req)
}

// FailNext appends errors to the script.
func (f *Flaky) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, errs...)
}

// Calls returns every request seen so far.
func (f *Flaky) Calls() []model.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.TransferRequest, len(f.calls))
	copy(out, f.calls)
	return out
}
