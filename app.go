package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// FetchRequest selects the window of one run. An empty Token means the session
// provider decides where the token comes from.
type FetchRequest struct {
	Window DateWindow
	Token  string
}

// tokenProvider yields the Authorization value for a run.
type tokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// App manages application dependencies and logic.
type App struct {
	cfg       *Config
	log       Logger
	session   tokenProvider
	fluvius   *FluviusService
	exporters Exporter
	out       io.Writer
	now       func() time.Time
}

func NewApp(cfg *Config, log Logger) (*App, error) {
	var rt http.RoundTripper = http.DefaultTransport

	if cfg.Cache.Dir != "disable" {
		cache, err := NewCachingRoundTripper(http.DefaultTransport, cfg.Cache.Dir, cfg.Cache.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		rt = cache
		log.Infof("HTTP caching enabled in directory: %s", cache.CacheDir)
	} else {
		log.Debugf("HTTP caching disabled")
	}

	fluvius, err := NewFluviusService(rt, cfg.Portal.APIBaseURL, cfg.Fetch.UserAgent)
	if err != nil {
		return nil, err
	}

	launcher := NewChromeLauncher(cfg.Browser, log.With("step", "browser"))
	login := NewBootstrapper(launcher, cfg.Portal, cfg.Browser, cfg.Session, log.With("step", "login"))

	exporters, err := NewExporters(cfg.Export, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		session:   NewSessionProvider(cfg.Session, login.TokenSource, log),
		fluvius:   fluvius,
		exporters: exporters,
		out:       os.Stdout,
		now:       time.Now,
	}, nil
}

// DefaultWindow is the configured number of days back from today.
func (a *App) DefaultWindow() DateWindow {
	return DaysBack(a.now().In(a.cfg.Fetch.Location()), a.cfg.Fetch.DaysBack)
}

// Token obtains a session token without fetching anything.
func (a *App) Token(ctx context.Context) (string, error) {
	return a.session.Token(ctx)
}

// Run obtains a token, fetches the window, prints the report and hands the
// result to every enabled exporter.
func (a *App) Run(ctx context.Context, req FetchRequest) (*Consumption, error) {
	runID := uuid.NewString()
	log := a.log.With("run_id", runID)
	log.Infof("Fetching %s for EAN %s", req.Window, a.cfg.Meter.EAN)

	token := req.Token
	if token == "" {
		var err error
		token, err = a.session.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain session token: %w", err)
		}
	}

	c, err := a.fluvius.GetConsumption(ctx, token, a.cfg.Meter.EAN, a.cfg.Meter.Serial, req.Window)
	if err != nil {
		return nil, err
	}
	c.RunID = runID
	log.Infof("Retrieved %d days of data", len(c.Days))

	if err := WriteReport(a.out, c.Days); err != nil {
		if !errors.Is(err, ErrNoData) {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		log.Warnf("No readings in %s", req.Window)
	}

	if err := a.exporters.Export(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *App) Close() error {
	return a.exporters.Close()
}
