package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wpnas/wpnas/internal/config"
	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/proxy"
	"github.com/wpnas/wpnas/internal/server"
	"github.com/wpnas/wpnas/internal/tui"
	"github.com/wpnas/wpnas/internal/wpapi"
)

const loadTimeout = 2 * time.Minute

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("wpnas %s\n", Version)
}

func runBrowse() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// the alt screen owns the terminal, so logs go to a file
	logDir := config.GetCacheDir()
	if err := config.EnsureDir(logDir); err == nil {
		if f, err := os.OpenFile(filepath.Join(logDir, "wpnas.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			log.SetOutput(f)
			defer func() {
				log.SetOutput(os.Stderr)
				f.Close()
			}()
		}
	}

	model := tui.NewModel(tui.Options{
		Manager:     a.manager,
		Controller:  a.controller,
		Notices:     a.notices,
		CatalogBase: a.cfg.CatalogBase,
		Version:     Version,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func loadCatalog(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if err := a.manager.Load(ctx); err != nil {
		return fmt.Errorf("%s %w", plugins.MsgLoadFailed, err)
	}
	return nil
}

// listView builds the view for `wpnas list` from its flags.
func listView(cmd *cobra.Command, perPage int) (dataview.View, error) {
	view := dataview.DefaultView()
	view.PerPage = perPage

	q, _ := cmd.Flags().GetString("search")
	view.Search = q
	if view.Searching() {
		view.Sort = dataview.RelevanceSort
	}

	if s, _ := cmd.Flags().GetString("sort"); s != "" {
		sort, err := dataview.ParseSort(s)
		if err != nil {
			return view, err
		}
		view.Sort = sort
		view.SortExplicit = true
	}

	filters, _ := cmd.Flags().GetStringArray("filter")
	for _, raw := range filters {
		f, err := dataview.ParseFilter(raw)
		if err != nil {
			return view, err
		}
		view.Filters = append(view.Filters, f)
	}

	if page, _ := cmd.Flags().GetInt("page"); page > 0 {
		view.Page = page
	}
	if n, _ := cmd.Flags().GetInt("per-page"); n > 0 {
		view.PerPage = n
	}
	return view, nil
}

func runList(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := listView(cmd, a.cfg.PerPage)
	if err != nil {
		return err
	}
	if err := loadCatalog(a); err != nil {
		return err
	}

	res := a.engine.Query(view)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Items) == 0 {
		fmt.Println("No plugins found.")
		return nil
	}
	writeTable(os.Stdout, res, a.engine.Fields())
	return nil
}

var listColumns = []struct {
	id    string
	width int
}{
	{dataview.FieldName, 28},
	{"slug", 24},
	{dataview.FieldVersion, 14},
	{dataview.FieldStatus, 14},
	{dataview.FieldActions, 11},
	{dataview.FieldAuthor, 18},
}

func writeTable(w io.Writer, res dataview.Result, fields dataview.Fields) {
	pad := func(s string, width int) string {
		return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
	}

	header := make([]string, len(listColumns))
	for i, c := range listColumns {
		label := strings.ToUpper(c.id)
		if f, ok := fields.Get(c.id); ok {
			label = strings.ToUpper(f.Label)
		}
		header[i] = pad(label, c.width)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(header, "  "), " "))

	for _, r := range res.Items {
		row := make([]string, len(listColumns))
		for i, c := range listColumns {
			var v string
			if f, ok := fields.Get(c.id); ok {
				v = dataview.Display(f, r)
			} else {
				v = r.Slug
			}
			if c.id == dataview.FieldVersion && r.HasUpdate() {
				v = r.InstalledVersion() + "→" + r.Version
			}
			row[i] = pad(v, c.width)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(row, "  "), " "))
	}

	if res.HasMore() {
		fmt.Fprintf(w, "\nShowing %d of %d (page %d of %d). Use --page to see more.\n",
			len(res.Items), res.TotalItems, res.Page, res.TotalPages)
	}
}

// unknownSlug builds the error for a slug missing from the catalog, with
// close matches when there are any.
func unknownSlug(slug string, records []plugins.Record) error {
	suggestions := plugins.Suggest(slug, records, 3)
	if len(suggestions) == 0 {
		return fmt.Errorf("plugin not found: %s", slug)
	}
	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Slug
	}
	return fmt.Errorf("plugin not found: %s (did you mean: %s?)", slug, strings.Join(names, ", "))
}

func runInstall(cmd *cobra.Command, slugs []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := loadCatalog(a); err != nil {
		return err
	}

	records := a.manager.Catalog().Records()
	var targets []plugins.Record
	for _, slug := range slugs {
		rec, ok := plugins.FindBySlug(slug, records)
		if !ok {
			return unknownSlug(slug, records)
		}
		switch rec.Action() {
		case plugins.ActionInstall, plugins.ActionUpdate:
			targets = append(targets, rec)
		default:
			fmt.Printf("%s is already installed at %s, skipping\n", rec.Slug, rec.InstalledVersion())
		}
	}
	if len(targets) == 0 {
		return nil
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		var lines []string
		for _, r := range targets {
			lines = append(lines, fmt.Sprintf("%s %s %s", r.Action().Label(), r.Name, r.Version))
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Install %d plugin(s)?", len(targets))).
			Description(strings.Join(lines, "\n")).
			Affirmative("Install").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !confirmed {
			fmt.Println("Install cancelled.")
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, rec := range targets {
		g.Go(func() error {
			fmt.Printf("Installing %s...\n", rec.Slug)
			if err := a.manager.Install(gctx, rec.Slug); err != nil {
				fmt.Printf("✗ %s: %s\n", rec.Slug, errdefs.UserMessage(err, plugins.MsgInstallFailed))
				mu.Lock()
				failed = append(failed, rec.Slug)
				mu.Unlock()
				return nil
			}
			fmt.Printf("✓ %s: %s\n", rec.Slug, plugins.MsgInstalled)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d installs failed: %s", len(failed), len(targets), strings.Join(failed, ", "))
	}
	return nil
}

func runActivate(pluginFile string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := loadCatalog(a); err != nil {
		return err
	}

	records := a.manager.Catalog().Records()
	if _, ok := plugins.FindByID(pluginFile, records); !ok {
		// accept a slug too
		if rec, ok := plugins.FindBySlug(pluginFile, records); ok {
			pluginFile = rec.ID()
		} else {
			return unknownSlug(pluginFile, records)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.manager.Activate(ctx, pluginFile); err != nil {
		return errors.New(errdefs.UserMessage(err, plugins.MsgActivationFailed))
	}
	fmt.Println(plugins.MsgActivated)
	return nil
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.controller.Restore(ctx); err != nil {
		log.Warn("could not restore view preferences", "err", err)
	}
	if err := loadCatalog(a); err != nil {
		// the socket stays up so clients can retry with plugins.reload
		log.Warn("initial catalog load failed", "err", err)
	}

	return server.New(a.manager, a.controller, a.notices).Start(ctx)
}

func runProxy(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Proxy.Listen = listen
	}

	cacheDir := config.GetCacheDir()
	if err := config.EnsureDir(cacheDir); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	cache := proxy.NewCache(afero.NewOsFs(),
		filepath.Join(cacheDir, "catalog.json"),
		cfg.Proxy.CacheTTL.Duration,
		filepath.Join(cacheDir, "catalog.lock"))

	client := wpapi.NewHTTPClient(30*time.Second, cfg.Proxy.InsecureSkipVerify)
	srv := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           proxy.New(cfg.Proxy.UpstreamURL, client, cache).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Catalog proxy listening on %s (upstream %s)", cfg.Proxy.Listen, cfg.Proxy.UpstreamURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
