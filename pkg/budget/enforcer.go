// Package budget stops generation once a token budget for the current period
// is used up. Cache hits cost nothing and are never blocked.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docqa/docqa/pkg/models"
)

// ErrBudgetExceeded is returned when an operation exceeds its budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Usage is the slice of the usage ledger the enforcer reads.
type Usage interface {
	Total(ctx context.Context, since time.Time) (int64, error)
	TotalByOperation(ctx context.Context, operation string, since time.Time) (int64, error)
}

// Enforcer checks token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	usage    Usage
	now      func() time.Time
}

// New creates an Enforcer with the given policies and usage ledger.
func New(policies []models.BudgetPolicy, u Usage) *Enforcer {
	return &Enforcer{policies: policies, usage: u, now: time.Now}
}

// Check returns ErrBudgetExceeded if any policy applying to operation is used up.
func (e *Enforcer) Check(ctx context.Context, operation string) error {
	for _, p := range e.applicablePolicies(operation) {
		used, err := e.used(ctx, p)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %s budget of %d tokens used", ErrBudgetExceeded, p.Period, p.MaxTokens)
		}
	}
	return nil
}

// Status returns usage against every configured policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		used, err := e.used(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy) (int64, error) {
	since := periodStart(p.Period, e.now())
	if global(p) {
		return e.usage.Total(ctx, since)
	}
	return e.usage.TotalByOperation(ctx, p.Operation, since)
}

func (e *Enforcer) applicablePolicies(operation string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if global(p) || p.Operation == operation {
			result = append(result, p)
		}
	}
	return result
}

func global(p models.BudgetPolicy) bool {
	return p.Operation == "" || p.Operation == "*"
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
