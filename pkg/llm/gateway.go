package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Gateway routes prompts to providers registered against model-name prefixes
// and normalizes provider failures into inline error-tagged strings. The
// engine treats such strings as ordinary (degraded) turns, so a provider
// outage never aborts a run.
type Gateway struct {
	routes   map[string]Provider
	fallback Provider
	logger   *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithFallback sets the provider used when no prefix matches.
func WithFallback(p Provider) GatewayOption {
	return func(g *Gateway) { g.fallback = p }
}

// WithGatewayLogger sets the logger used for routing diagnostics.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a Gateway with an explicit registration table.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		routes: make(map[string]Provider),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register binds a model-name prefix to a provider. Longest prefix wins at
// call time. Registering an existing prefix replaces the previous provider.
func (g *Gateway) Register(prefix string, p Provider) {
	if prefix == "" || p == nil {
		return
	}
	g.routes[strings.ToLower(prefix)] = p
}

// resolve picks the provider whose registered prefix is the longest match
// for the model name.
func (g *Gateway) resolve(model string) Provider {
	name := strings.ToLower(model)
	prefixes := make([]string, 0, len(g.routes))
	for prefix := range g.routes {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return g.routes[prefix]
		}
	}
	return g.fallback
}

// Call sends the prompt to the provider resolved for modelName. It never
// returns an error: provider and routing failures come back as an inline
// "[error: ...]" string so callers can record a degraded turn and continue.
func (g *Gateway) Call(ctx context.Context, prompt, modelName string, cfg ModelConfig) string {
	provider := g.resolve(modelName)
	if provider == nil {
		g.logger.WarnContext(ctx, "no provider registered for model", "model", modelName)
		return fmt.Sprintf("[error: no provider registered for model %q]", modelName)
	}

	model := cfg.Model
	if model == "" {
		model = modelName
	}
	resp, err := provider.Chat(ctx, ChatRequest{
		Model:       model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "provider call failed", "model", modelName, "err", err)
		return fmt.Sprintf("[error calling %s: %v]", modelName, err)
	}
	if resp == nil {
		return fmt.Sprintf("[error calling %s: empty response]", modelName)
	}
	return resp.Content
}
