package platform

import (
	"log/slog"

	"github.com/sievelit/sieve/pkg/core"
)

// options holds the internal assembly configuration.
type options struct {
	gateway   core.Gateway
	logger    *slog.Logger
	agent     string
	generator string
	workers   int
	retries   int
}

// Option defines a functional option for assembling the App.
type Option func(*options)

func defaultOptions() *options {
	return &options{}
}

// WithLogger sets the logger shared by every service.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGateway injects a custom store gateway (e.g. a fake for tests).
// If provided, no Zotero client is constructed and the connection fields of
// the config are ignored.
func WithGateway(gw core.Gateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithAgent overrides the tool identity stamped on written decisions.
func WithAgent(agent string) Option {
	return func(o *options) { o.agent = agent }
}

// WithGenerator stamps the capturing tool's name into snapshot manifests.
func WithGenerator(g string) Option {
	return func(o *options) { o.generator = g }
}

// WithWorkers overrides the config's fan-out bound.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRetries overrides the version-conflict retry budget for moves.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}
