package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leasesched/internal/busy"
	"leasesched/internal/calendar"
	"leasesched/internal/config"
	"leasesched/internal/jobs"
	appLog "leasesched/internal/log"
	"leasesched/internal/notify"
	"leasesched/internal/store"
	"leasesched/internal/sweeper"
	"leasesched/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("leasesched starting", "version", version)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"data_dir", conf.DataDir,
		"outbox_dir", conf.OutboxDir,
		"min_nights", conf.Selection.MinNights,
		"max_nights", conf.Selection.MaxNights,
		"expiry_sweep", conf.ExpirySweep,
		"busy_feeds", len(conf.Busy.Feeds),
		"once", flags.once,
	)

	if err := run(conf, flags.once); err != nil {
		appLog.Error("leasesched stopped with errors", err)
		os.Exit(1)
	}
	appLog.Info("leasesched exiting")
}

func run(conf *config.Config, once bool) error {
	fs, err := store.NewFileStore(conf.DataDir)
	if err != nil {
		return err
	}

	var sender notify.Sender = notify.LogSender{}
	if conf.OutboxDir != "" {
		sender = notify.OutboxSender{Dir: conf.OutboxDir}
	}
	dispatcher := notify.NewDispatcher(sender, conf.Retry, web.InviteOptions(conf))

	sweep := sweeper.New(fs, dispatcher, time.Now)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		return sweep.Run(ctx)
	}

	loc, err := calendar.ResolveLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", conf.Timezone)
	}

	sched := jobs.New(loc)
	if err := sched.Add("expiry sweep", conf.ExpirySweep, sweep.Run); err != nil {
		return err
	}

	deps := web.Deps{
		Availability: fs,
		Meetings:     fs,
		Notifier:     dispatcher,
		Clock:        time.Now,
	}
	if len(conf.Busy.Feeds) > 0 {
		cal := newBusyCalendar(conf, loc)
		if err := cal.Refresh(ctx); err != nil {
			appLog.Error("initial busy feed refresh incomplete", err)
		}
		if err := sched.Add("busy refresh", conf.Busy.Refresh, cal.Refresh); err != nil {
			return err
		}
		deps.Busy = cal
	}
	sched.Start()

	srv := web.NewServer(conf, deps)
	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "addr", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-serveErr:
		if err != nil {
			errs = append(errs, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	sched.Stop(shutdownCtx)
	return errors.Join(errs...)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/leasesched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one expiry sweep and exit")

	flag.Parse()

	return cfg
}

func newBusyCalendar(conf *config.Config, loc *time.Location) *busy.Calendar {
	feeds := make([]busy.Feed, 0, len(conf.Busy.Feeds))
	for _, f := range conf.Busy.Feeds {
		feeds = append(feeds, busy.Feed{ID: f.ID, URL: f.URL})
	}
	fetcher := busy.NewFetcher(conf.BusyCacheDir(), nil, conf.Retry)
	return busy.NewCalendar(fetcher, feeds, busy.Options{
		Horizon:  time.Duration(conf.Busy.HorizonDays) * 24 * time.Hour,
		Floating: loc,
	})
}
