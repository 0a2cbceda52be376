package platform

import (
	"log/slog"

	"github.com/sievelit/sieve/pkg/adapters/zotero"
	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/mover"
	"github.com/sievelit/sieve/pkg/reconcile"
	"github.com/sievelit/sieve/pkg/report"
	"github.com/sievelit/sieve/pkg/snapshot"
)

// App is the assembled application: one gateway and every service built on
// top of it, sharing a logger.
type App struct {
	Config   Config
	Gateway  core.Gateway
	Ledger   *ledger.Ledger
	Mover    *mover.Mover
	Loader   *reconcile.Loader
	Engine   *report.Engine
	Capturer *snapshot.Capturer
	Log      *slog.Logger
}

// New assembles an App from cfg. The zero value of every option is usable;
// without WithGateway a Zotero client is built from the config's connection
// fields.
func New(cfg Config, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		log = slog.Default()
	}

	gw := o.gateway
	if gw == nil {
		client, err := zotero.New(zotero.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			LibraryID:   cfg.LibraryID,
			LibraryType: cfg.LibraryType,
			Logger:      log,
		})
		if err != nil {
			return nil, err
		}
		gw = client
	}

	workers := o.workers
	if workers == 0 {
		workers = cfg.Workers
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(log)}
	if o.agent != "" {
		ledgerOpts = append(ledgerOpts, ledger.WithAgent(o.agent))
	}
	led := ledger.New(gw, ledgerOpts...)

	moverOpts := []mover.Option{mover.WithLogger(log)}
	if o.retries > 0 {
		moverOpts = append(moverOpts, mover.WithRetries(o.retries))
	}
	mv := mover.New(gw, led, moverOpts...)

	capturerOpts := []snapshot.Option{snapshot.WithLogger(log)}
	if workers > 0 {
		capturerOpts = append(capturerOpts, snapshot.WithWorkers(workers))
	}
	if o.generator != "" {
		capturerOpts = append(capturerOpts, snapshot.WithGenerator(o.generator))
	}

	return &App{
		Config:   cfg,
		Gateway:  gw,
		Ledger:   led,
		Mover:    mv,
		Loader:   reconcile.NewLoader(gw, led, mv, log),
		Engine:   report.New(gw, led, mv, report.WithLogger(log)),
		Capturer: snapshot.New(gw, capturerOpts...),
		Log:      log,
	}, nil
}
