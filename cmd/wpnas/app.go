package main

import (
	"fmt"

	"github.com/wpnas/wpnas/internal/config"
	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/notify"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/prefs"
	"github.com/wpnas/wpnas/internal/search"
	"github.com/wpnas/wpnas/internal/wpapi"
)

// app is everything a command needs to talk to the site.
type app struct {
	cfg        *config.Config
	notices    *notify.Store
	manager    *plugins.Manager
	engine     *dataview.Engine
	controller *dataview.Controller
	store      prefs.Store
	closeStore func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if siteURL != "" {
		cfg.SiteURL = siteURL
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if !log.SetLevel(level) {
		log.Warnf("Unknown log level %q, keeping info", level)
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := wpapi.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	a := &app{cfg: cfg, notices: notify.NewStore(50), closeStore: func() error { return nil }}
	a.manager = plugins.NewManager(client, a.notices)
	a.store = a.openStore()

	a.engine = dataview.NewEngine(a.manager.Catalog(), dataview.DefaultFields(), searchOptions(cfg))
	base := dataview.DefaultView()
	base.PerPage = cfg.PerPage
	a.controller = dataview.NewController(a.engine, a.store, base)
	return a, nil
}

// openStore falls back to in-memory preferences when the database cannot be
// opened, so a read-only data dir does not block browsing.
func (a *app) openStore() prefs.Store {
	dir := config.ExpandPath(a.cfg.DataDir)
	if err := config.EnsureDir(dir); err != nil {
		log.Warn("preferences will not persist", "err", err)
		return prefs.NewMemoryStore()
	}
	store, err := prefs.OpenSQLite(dir)
	if err != nil {
		log.Warn("preferences will not persist", "err", err)
		return prefs.NewMemoryStore()
	}
	a.closeStore = store.Close
	return store
}

func (a *app) Close() {
	a.controller.Wait()
	if err := a.closeStore(); err != nil {
		log.Warn("failed to close preferences", "err", err)
	}
}

func searchOptions(cfg *config.Config) search.Options {
	return search.Options{
		Boost: map[search.Field]float64{
			search.FieldName:        cfg.Search.BoostName,
			search.FieldIdentifier:  cfg.Search.BoostIdentifier,
			search.FieldTags:        cfg.Search.BoostTags,
			search.FieldDescription: cfg.Search.BoostDescription,
		},
		Fuzzy:  cfg.Search.Fuzzy,
		Prefix: cfg.Search.Prefix,
	}
}
