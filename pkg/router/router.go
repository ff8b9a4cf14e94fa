// Package router resolves a generation operation to the ordered list of
// providers to try.
package router

import (
	"fmt"

	"github.com/docqa/docqa/pkg/config"
)

// Operations that can be routed.
const (
	OpAsk       = "ask"
	OpSummarize = "summarize"
	OpExtract   = "extract"
)

// Route is a provider and the model to request from it.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router maps operations to provider chains.
type Router struct {
	providers []config.ProviderConfig
	routes    []config.RouteConfig
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{providers: cfg.Providers, routes: cfg.Router.Routes}
}

// Resolve returns the ordered routes for op. A configured route wins;
// otherwise every provider is tried in configuration order with its own model.
func (r *Router) Resolve(op string) ([]Route, error) {
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	byName := make(map[string]config.ProviderConfig, len(r.providers))
	for _, p := range r.providers {
		byName[p.Name] = p
	}

	for _, rc := range r.routes {
		if rc.Operation != op {
			continue
		}
		var routes []Route
		for _, target := range rc.Targets {
			p, ok := byName[target.Provider]
			if !ok {
				continue
			}
			model := target.Model
			if model == "" {
				model = p.Model
			}
			routes = append(routes, Route{Provider: p, Model: model})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown", op)
		}
		return routes, nil
	}

	routes := make([]Route, 0, len(r.providers))
	for _, p := range r.providers {
		routes = append(routes, Route{Provider: p, Model: p.Model})
	}
	return routes, nil
}
