// Package generation produces answers from prompts through chat completion
// providers.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/docqa/docqa/pkg/models"
)

// ErrUpstream marks failures of the generation provider.
var ErrUpstream = errors.New("upstream generation failed")

// Generator turns a prompt into completion text.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// UsageReporter is implemented by generators that know the token usage of a
// completion.
type UsageReporter interface {
	CompleteWithUsage(ctx context.Context, prompt string) (string, models.Usage, error)
}

// Recorder receives one record per successful provider call.
type Recorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// BudgetChecker vetoes an operation before any provider is called.
type BudgetChecker interface {
	Check(ctx context.Context, operation string) error
}

// UpstreamError describes a failed provider call. StatusCode is zero for
// transport errors.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("provider %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Unwrap lets errors.Is match both ErrUpstream and the transport cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

// Retryable reports whether the next provider should be tried after err.
func Retryable(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	if ue.Err != nil && (errors.Is(ue.Err, context.Canceled) || errors.Is(ue.Err, context.DeadlineExceeded)) {
		return false
	}
	return ue.StatusCode == 0 || ue.StatusCode >= 500
}
