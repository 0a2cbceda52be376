package sieve

import (
	"log/slog"

	"github.com/sievelit/sieve/internal/platform"
	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/sdb"
)

// --- Types ---

// App is the assembled application: the gateway plus every screening
// service built on it.
type App = platform.App

// Config holds connection and funnel settings. See LoadConfig.
type Config = platform.Config

// Gateway is the contract for the remote reference store.
type Gateway = core.Gateway

// Record is one reviewer's screening decision for one item and phase.
type Record = sdb.Record

// --- Configuration ---

// Option defines a functional option for assembling the App.
type Option = platform.Option

// WithLogger sets the logger shared by every service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithGateway injects a custom store gateway (e.g. a fake for tests).
func WithGateway(gw core.Gateway) Option {
	return platform.WithGateway(gw)
}

// WithAgent overrides the tool identity stamped on written decisions.
func WithAgent(agent string) Option {
	return platform.WithAgent(agent)
}

// WithWorkers overrides the fan-out bound for snapshot and audit sweeps.
func WithWorkers(n int) Option {
	return platform.WithWorkers(n)
}

// WithRetries overrides the version-conflict retry budget for moves.
func WithRetries(n int) Option {
	return platform.WithRetries(n)
}

// --- Factory ---

// New assembles an App from cfg.
func New(cfg Config, opts ...Option) (*App, error) {
	return platform.New(cfg, opts...)
}

// LoadConfig reads the configuration file at path (empty: search upward
// from the working directory) and applies SIEVE_* environment overrides.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}
