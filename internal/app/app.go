// Package app initializes and holds the long-lived application services.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/blob/gcs"
	"github.com/probekit/recipecrawl/internal/blob/local"
	systemclock "github.com/probekit/recipecrawl/internal/clock/system"
	"github.com/probekit/recipecrawl/internal/config"
	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/dispatcher"
	"github.com/probekit/recipecrawl/internal/logging"
	"github.com/probekit/recipecrawl/internal/prober/headprobe"
	"github.com/probekit/recipecrawl/internal/progress"
	"github.com/probekit/recipecrawl/internal/progress/sinks"
	memorypublisher "github.com/probekit/recipecrawl/internal/publisher/memory"
	pubsubpublisher "github.com/probekit/recipecrawl/internal/publisher/pubsub"
	"github.com/probekit/recipecrawl/internal/runs"
	"github.com/probekit/recipecrawl/internal/scrape"
	"github.com/probekit/recipecrawl/internal/site"
	storagememory "github.com/probekit/recipecrawl/internal/storage/memory"
	storagepostgres "github.com/probekit/recipecrawl/internal/storage/postgres"
	"github.com/probekit/recipecrawl/internal/worker"
)

// App wires configuration into concrete services and owns their lifecycle.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	sites      *site.Registry
	registry   *runs.Registry
	store      discovery.PermalinkStore
	dispatcher *dispatcher.Dispatcher
	closers    []func()
}

// New builds the application from configuration, failing fast when any
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	a.sites = site.NewRegistry()
	for name, sc := range cfg.Sites {
		profile := site.Profile{
			Name:       name,
			URIFormat:  sc.URIFormat,
			ExistsCode: sc.ExistsCode,
			WatchCode:  sc.WatchCode,
			LowerID:    sc.LowerID,
			UpperID:    sc.UpperID,
		}
		if err := a.sites.Register(profile); err != nil {
			return nil, err
		}
	}

	store, err := a.initStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	blobStore, err := a.initBlob(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := a.initPublisher(ctx)
	if err != nil {
		return nil, err
	}

	clock := systemclock.New()
	a.registry = runs.NewRegistry(clock)

	var extractor *scrape.Extractor
	if cfg.Scrape.Enabled {
		extractor = scrape.NewExtractor(scrape.Config{
			UserAgent: cfg.Scrape.UserAgent,
			Timeout:   cfg.ScrapeTimeout(),
		}, scrape.NewWrapperRegistry(), logger.Named("scrape"))
	}

	engines := func(profile site.Profile) (*discovery.Engine, error) {
		prober := headprobe.New(profile, headprobe.Config{
			Timeout:      cfg.ProbeTimeout(),
			QPS:          cfg.Probe.QPS,
			Burst:        cfg.Probe.Burst,
			SentinelCode: cfg.Discovery.SentinelCode,
			UserAgent:    cfg.Probe.UserAgent,
		}, logger.Named("probe"))
		return discovery.NewEngine(prober, prober.CandidateURI, logger.Named("engine"),
			discovery.WithSentinelCode(cfg.Discovery.SentinelCode))
	}

	consumers := func(profile site.Profile) *worker.Consumer {
		opts := []worker.Option{}
		if extractor != nil {
			opts = append(opts, worker.WithScraper(extractor))
		}
		if blobStore != nil {
			opts = append(opts, worker.WithBlobStore(blobStore))
		}
		if pub != nil {
			opts = append(opts, worker.WithPublisher(pub))
		}
		return worker.NewConsumer(profile, store, clock, logger.Named("worker"), worker.Config{
			Topic:       cfg.PubSub.Topic,
			ContentType: cfg.Storage.ContentType,
		}, opts...)
	}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		sinks.NewRegistrySink(a.registry, logger.Named("progress")),
		promSink,
	)
	a.closers = append(a.closers, func() { _ = hub.Close(context.Background()) })

	a.dispatcher = dispatcher.New(a.sites, a.registry, engines, consumers, logger.Named("dispatcher"),
		dispatcher.WithProgress(hub, 0))
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Sites exposes the site profile registry.
func (a *App) Sites() *site.Registry { return a.sites }

// Runs exposes the run record registry.
func (a *App) Runs() *runs.Registry { return a.registry }

// Store exposes the permalink store.
func (a *App) Store() discovery.PermalinkStore { return a.store }

// Dispatcher exposes the run dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatcher }

// Close cancels active runs and releases service resources.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func (a *App) initStore(ctx context.Context) (discovery.PermalinkStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory permalink store")
		return storagememory.NewPermalinkStore(), nil
	}
	a.logger.Info("connecting to postgres")
	store, err := storagepostgres.NewPermalinkStore(ctx, storagepostgres.StoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) initBlob(ctx context.Context) (discovery.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "none":
		return nil, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.logger.Info("using gcs snapshot store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
	default:
		a.logger.Info("using local snapshot store", zap.String("base_dir", a.cfg.Storage.BaseDir))
		return local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
	}
}

func (a *App) initPublisher(ctx context.Context) (discovery.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers, func() {
		pub.Close()
		_ = client.Close()
	})
	a.logger.Info("using pubsub publisher", zap.String("project", a.cfg.PubSub.ProjectID))
	return pub, nil
}
