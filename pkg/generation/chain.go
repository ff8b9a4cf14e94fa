package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/router"
)

// Factory builds the Generator for a single route.
type Factory func(router.Route) Generator

// Chain fans an operation out over the router's provider list, falling over
// to the next provider on transport errors and 5xx responses.
type Chain struct {
	router  *router.Router
	factory Factory
	log     *zap.Logger
	usage   Recorder
	budget  BudgetChecker

	mu      sync.Mutex
	clients map[string]Generator
}

// NewChain creates a Chain.
func NewChain(r *router.Router, factory Factory, log *zap.Logger) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{
		router:  r,
		factory: factory,
		log:     log,
		clients: make(map[string]Generator),
	}
}

// WithRecorder makes the chain record token usage of every successful call.
func (c *Chain) WithRecorder(r Recorder) *Chain {
	c.usage = r
	return c
}

// WithBudget makes the chain refuse operations whose token budget is used up.
func (c *Chain) WithBudget(b BudgetChecker) *Chain {
	c.budget = b
	return c
}

// For returns a Generator bound to op.
func (c *Chain) For(op string) Generator {
	return &operation{chain: c, op: op}
}

type operation struct {
	chain *Chain
	op    string
}

func (o *operation) Complete(ctx context.Context, prompt string) (string, error) {
	return o.chain.complete(ctx, o.op, prompt)
}

func (c *Chain) complete(ctx context.Context, op, prompt string) (string, error) {
	if c.budget != nil {
		if err := c.budget.Check(ctx, op); err != nil {
			return "", err
		}
	}

	routes, err := c.router.Resolve(op)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrUpstream, op, err)
	}

	var lastErr error
	for _, route := range routes {
		out, err := c.call(ctx, op, route, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		c.log.Warn("provider failed, trying next",
			zap.String("operation", op),
			zap.String("provider", route.Provider.Name),
			zap.String("model", route.Model),
			zap.Error(err))
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

func (c *Chain) call(ctx context.Context, op string, route router.Route, prompt string) (string, error) {
	g := c.client(route)
	ur, ok := g.(UsageReporter)
	if c.usage == nil || !ok {
		return g.Complete(ctx, prompt)
	}

	start := time.Now()
	out, usage, err := ur.CompleteWithUsage(ctx, prompt)
	if err != nil {
		return "", err
	}
	rec := models.UsageRecord{
		Operation:        op,
		Provider:         route.Provider.Name,
		Model:            route.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
		CreatedAt:        start.UTC(),
	}
	if err := c.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		c.log.Warn("usage record failed", zap.String("operation", op), zap.Error(err))
	}
	return out, nil
}

func (c *Chain) client(route router.Route) Generator {
	key := route.Provider.Name + "/" + route.Model
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.clients[key]
	if !ok {
		g = c.factory(route)
		c.clients[key] = g
	}
	return g
}
