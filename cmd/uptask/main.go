package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/api"
	"github.com/nhle/uptask/internal/app"
	"github.com/nhle/uptask/internal/credential"
	"github.com/nhle/uptask/internal/guard"
	"github.com/nhle/uptask/internal/logging"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/projects"
	"github.com/nhle/uptask/internal/session"
	"github.com/nhle/uptask/internal/store"
	appsync "github.com/nhle/uptask/internal/sync"
)

// Version is set at build time.
var Version = "dev"

var (
	_ session.API    = (*api.Client)(nil)
	_ projects.API   = (*api.Client)(nil)
	_ projects.Cache = (*store.SQLiteStore)(nil)
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:     "uptask",
		Short:   "Terminal client for the UpTask project manager",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(flags)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", model.DefaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(loginCmd(flags))
	rootCmd.AddCommand(logoutCmd(flags))
	rootCmd.AddCommand(whoamiCmd(flags))
	rootCmd.AddCommand(projectsCmd(flags))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds everything built from the config. It is constructed once
// per process and threaded into the UI or the subcommand.
type runtime struct {
	cfg      *model.AppConfig
	log      *logrus.Logger
	client   *api.Client
	session  *session.Store
	projects *projects.Store
	guard    *guard.Guard
	cache    *store.SQLiteStore
	alerts   alert.Sink
	recorder *alert.Recorder
	closers  []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.log.WithError(err).Warn("shutting down")
		}
	}
}

func setup(flags *rootFlags) (*runtime, error) {
	cfg, err := model.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}

	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	r := &runtime{cfg: cfg, log: log, closers: []func() error{logCloser.Close}}

	ring, err := credential.Open(cfg.Keyring.FileDir)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	r.client = api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		api.WithRateLimit(cfg.API.RequestsPerSecond),
		api.WithLogger(log.WithField("component", "api")),
	)
	r.session = session.New(r.client, ring, session.WithLogger(log.WithField("component", "session")))
	r.client.SetTokenSource(r.session)
	r.client.OnUnauthorized(r.session.Invalidate)

	r.recorder = &alert.Recorder{}
	r.alerts = alert.Multi{alert.LogSink{Log: log.WithField("component", "alert")}, r.recorder}

	opts := []projects.Option{projects.WithLogger(log.WithField("component", "projects"))}
	if cfg.Cache.Path != "" {
		cache, err := store.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			// The cache is optional; run without it.
			log.WithError(err).Warn("opening offline cache")
		} else {
			r.cache = cache
			r.closers = append(r.closers, cache.Close)
			opts = append(opts, projects.WithCache(cache))
		}
	}
	r.projects = projects.New(r.client, r.alerts, r.session, opts...)
	r.guard = guard.New(r.session)

	log.WithFields(logrus.Fields{
		"version":  Version,
		"base_url": cfg.API.BaseURL,
	}).Info("starting")
	return r, nil
}

func runTUI(flags *rootFlags) error {
	r, err := setup(flags)
	if err != nil {
		return err
	}
	defer r.Close()

	var poller *appsync.Poller
	if sec := r.cfg.Sync.IntervalSec; sec > 0 {
		poller = appsync.New(time.Duration(sec)*time.Second, r.log)
	}

	m := app.New(app.Services{
		Session:  r.session,
		Projects: r.projects,
		Guard:    r.guard,
		Alerts:   r.alerts,
		Recorder: r.recorder,
		Poller:   poller,
		Log:      r.log.WithField("component", "app"),
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
