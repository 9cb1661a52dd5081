package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"eventmap/internal/app"
	"eventmap/internal/calendar"
	"eventmap/internal/categorize"
	"eventmap/internal/config"
	"eventmap/internal/filter"
	"eventmap/internal/geo"
	"eventmap/internal/geocode"
	appLog "eventmap/internal/log"
	"eventmap/internal/normalize"
	"eventmap/internal/sanitize"
	"eventmap/internal/search"
	"eventmap/internal/store"
	"eventmap/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	query      string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if errs := conf.Validate(); len(errs) > 0 {
		for _, fe := range errs {
			appLog.Error("invalid config", fe, "config_path", flags.configPath)
		}
		os.Exit(1)
	}

	level := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("eventmap starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"sources", conf.Calendar.Sources,
		"ics_count", len(conf.Calendar.ICS),
		"geocoding", conf.EnableGeocoding,
		"cache_driver", conf.Geocoding.Cache.Driver,
		"max_events", conf.MaxEvents,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	p, err := buildPipeline(ctx, conf)
	if err != nil {
		appLog.Error("failed to build pipeline", err)
		os.Exit(1)
	}
	defer p.close()

	if flags.once {
		if err := runOnce(ctx, p, flags.query); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, p); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("eventmap exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./eventmap.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load and normalize the calendar once, print JSON and exit")
	flag.StringVar(&cfg.query, "q", "", "Search query applied in -once mode")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

type pipeline struct {
	app        *app.App
	origins    *search.Resolver
	categories []string
	cache      store.Cache
}

func (p *pipeline) close() {
	p.app.Close()
	if err := p.cache.Close(); err != nil {
		appLog.Warn("closing geocode cache", "err", err.Error())
	}
}

func buildPipeline(ctx context.Context, conf *config.Config) (*pipeline, error) {
	loc := conf.Location()
	gc := conf.Geocoding

	cache, err := store.Open(ctx, gc.Cache)
	if err != nil {
		appLog.Warn("geocode cache unavailable; continuing without it", "driver", gc.Cache.Driver, "err", err.Error())
		cache = store.Noop{}
	}
	if pc, ok := cache.(interface {
		Purge(context.Context) (int64, error)
	}); ok {
		if n, err := pc.Purge(ctx); err != nil {
			appLog.Warn("geocode cache purge failed", "err", err.Error())
		} else if n > 0 {
			appLog.Info("expired geocode cache rows removed", "rows", n)
		}
	}

	table := geo.DefaultTable()
	strategies, provider := geocodingStack(conf, table, cache)

	categorizer := categorize.New()
	normalizer := normalize.New(sanitize.Default{}, categorizer, geo.NewResolver(conf.DefaultRegion, strategies...), normalize.Options{
		ExcludeRecurringIDs: conf.Calendar.ExcludeRecurringIDs,
		Location:            loc,
		Concurrency:         gc.Concurrency,
	})

	origins := search.NewResolver(table, provider, cache, search.Options{
		Country:  gc.Country,
		Timeout:  gc.Timeout,
		CacheTTL: gc.Cache.TTL,
	})

	loader, err := calendar.NewLoaderFromConfig(conf, nil)
	if err != nil {
		cache.Close()
		return nil, err
	}

	a := app.New(loader, normalizer, filter.NewEngine(origins, loc, nil), app.Options{
		Context:       ctx,
		DebounceDelay: conf.DebounceDelay(),
	})

	return &pipeline{app: a, origins: origins, categories: categorizer.Tags(), cache: cache}, nil
}

// geocodingStack returns the event location strategies and the provider used
// by location search. Search always gets the provider chain; EnableGeocoding
// only adds geocoding for event locations.
func geocodingStack(conf *config.Config, table *geo.Table, cache store.Cache) ([]geo.Strategy, geocode.Provider) {
	gc := conf.Geocoding
	strategies := []geo.Strategy{geo.KnownStrategy{Table: table}}

	var provider geocode.Provider
	chain := geocode.NewChainFromConfig(gc)
	if chain.Len() > 0 {
		provider = chain
	}

	switch {
	case !conf.EnableGeocoding:
		appLog.Info("event location geocoding disabled")
	case provider == nil:
		appLog.Warn("geocoding enabled but no provider is configured")
	default:
		strategies = append(strategies, geo.NewGeocodeStrategy(chain, cache, geo.GeocodeOptions{
			RegionSuffix: gc.RegionSuffix,
			Country:      gc.Country,
			Timeout:      gc.Timeout,
			CacheTTL:     gc.Cache.TTL,
		}))
	}
	return strategies, provider
}

// runOnce loads the calendar, optionally applies a search, and prints the
// resulting view to stdout.
func runOnce(ctx context.Context, p *pipeline, query string) error {
	if err := p.app.Reload(ctx); err != nil {
		return err
	}
	if query != "" {
		p.app.Search(query, true)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p.app.View())
}

func serve(ctx context.Context, conf *config.Config, p *pipeline) error {
	if err := p.app.Reload(ctx); err != nil {
		appLog.Warn("initial load failed; serving empty set until the next refresh", "err", err.Error())
	}

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := p.app.Reload(ctx); err != nil {
			appLog.Warn("scheduled reload failed", "err", err.Error())
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	srv := web.NewServer(conf, p.app, p.origins, p.categories)
	defer srv.Close()
	return srv.Run(ctx)
}
