// Copyright confd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command confd is the configuration daemon: it owns the default
// database, the listener log and the process lock, and serves the RPC
// surface of §4.11 over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/hyperair/confd/internal/backend/jsonfile"
	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/build"
	"github.com/hyperair/confd/internal/config"
	"github.com/hyperair/confd/internal/daemon"
	"github.com/hyperair/confd/internal/debug"
	"github.com/hyperair/confd/internal/health"
	"github.com/hyperair/confd/internal/log"
	"github.com/hyperair/confd/internal/metrics"
	"github.com/hyperair/confd/internal/rpc/httptransport"
	"github.com/hyperair/confd/internal/workgroup"
	"github.com/alecthomas/kingpin/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	app := kingpin.New("confd", "Hierarchical configuration daemon.")
	app.HelpFlag.Short('h')
	app.Version(build.String())

	configFile := app.Flag("config", "Path to a YAML configuration file.").String()
	listen := app.Flag("listen", "RPC listen address.").String()
	metricsListen := app.Flag("metrics-listen", "Metrics listen address.").Default("127.0.0.1:9596").String()
	debugListen := app.Flag("debug-listen", "pprof and introspection listen address.").Default("127.0.0.1:9597").String()
	debugFlag := app.Flag("debug", "Enable debug logging.").Bool()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.ParseFile(*configFile)
		if err != nil {
			os.Stderr.WriteString("confd: " + err.Error() + "\n")
			os.Exit(1)
		}
		cfg = loaded
	}
	if raw := os.Getenv("CONFD_CONFIG_SOURCE"); raw != "" {
		cfg.SourcePath = strings.Split(raw, ",")
	}
	if os.Getenv("CONFD_DEBUG_TRACE_CLIENT") != "" {
		cfg.Debug = true
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *debugFlag {
		cfg.Debug = true
	}

	resolvedSourcePath, err := cfg.EffectiveSourcePath()
	if err != nil {
		os.Stderr.WriteString("confd: " + err.Error() + "\n")
		os.Exit(1)
	}
	cfg.SourcePath = resolvedSourcePath

	logger := log.New(cfg.Debug)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	ping := func(endpoint string) bool {
		c := httptransport.NewDaemonClient("http://" + endpoint)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.Ping(ctx) == nil
	}

	d, err := daemon.New(logger, cfg, cfg.EffectiveLockDir(), cfg.EffectiveListenerLogPath(), ping, daemon.WithMetrics(m))
	if err != nil {
		logger.WithError(err).Fatal("failed to start confd")
	}

	g := workgroup.New(logger)
	g.Add("signal-handler", func(stop <-chan struct{}) error {
		return handleSignals(logger, d, stop)
	})

	g.AddContext("rpc-server", func(ctx context.Context) {
		srv := &http.Server{Addr: cfg.Listen, Handler: httptransport.NewDaemonRouter(d)}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.WithField("addr", cfg.Listen).Info("serving RPC")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("RPC server exited")
		}
	})

	g.AddContext("metrics-server", func(ctx context.Context) {
		mr := mux.NewRouter()
		mr.Handle("/metrics", metrics.Handler(reg))
		mr.Handle("/healthz", health.Handler(d))
		srv := &http.Server{Addr: *metricsListen, Handler: mr}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server exited")
		}
	})

	g.AddContext("debug-server", func(ctx context.Context) {
		mr := http.NewServeMux()
		debug.Register(mr, func() any { return d.DebugSnapshot() })
		srv := &http.Server{Addr: *debugListen, Handler: mr}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("debug server exited")
		}
	})

	g.Add("lock-watch", func(stop <-chan struct{}) error {
		return watchLockDir(logger, cfg.EffectiveLockDir(), cfg.Listen, stop)
	})

	g.Add("idle-sweep", func(stop <-chan struct{}) error {
		ticker := time.NewTicker(cfg.IdleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-ticker.C:
				shouldExit, err := d.IdleSweep(cfg.IdleTimeout)
				if err != nil {
					logger.WithError(err).Warn("idle sweep failed")
					continue
				}
				if shouldExit {
					logger.Info("no databases remain in use, shutting down")
					return nil
				}
			}
		}
	})

	if err := g.Run(); err != nil {
		logger.WithError(err).Warn("confd exiting on error")
	}
	if err := d.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("error during shutdown")
		os.Exit(1)
	}
}

// watchLockDir uses fsnotify to catch another process rewriting our lock
// directory's ior file out from under us -- a sign of a split-brain
// takeover that the ping-based staleness check in internal/lock is meant
// to prevent but can still race against -- and logs a warning. It never
// returns non-nil on its own; only stop ends it.
func watchLockDir(logger *logrus.Logger, lockDir, ourEndpoint string, stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("could not start lock directory watcher")
		<-stop
		return nil
	}
	defer w.Close()
	if err := w.Add(lockDir); err != nil {
		logger.WithError(err).WithField("dir", lockDir).Warn("could not watch lock directory")
		<-stop
		return nil
	}

	iorFile := filepath.Join(lockDir, "ior")
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != iorFile || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(iorFile)
			if err != nil {
				continue
			}
			if !strings.HasSuffix(strings.TrimSpace(string(data)), ":"+ourEndpoint) {
				logger.WithField("ior", string(data)).Warn("lock directory ior file changed to a different holder")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("lock directory watch error")
		}
	}
}

// handleSignals implements the §4.10 signal table. SIGSEGV/SIGBUS/SIGILL
// are not caught here: Go's runtime already turns those into a crash
// dump and os.Exit, which is the "write-crash-then-abort" behavior the
// table calls for, so catching them here would only get in the way.
func handleSignals(logger *logrus.Logger, d *daemon.Daemon, stop <-chan struct{}) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGPIPE, syscall.SIGFPE, syscall.SIGINT)
	defer signal.Stop(ch)

	for {
		select {
		case <-stop:
			return nil
		case sig := <-ch:
			switch sig {
			case syscall.SIGINT:
				continue // ignored, per §4.10
			case syscall.SIGHUP:
				logger.Infof("received %s, shutting down cleanly", sig)
				return d.Shutdown(context.Background())
			default:
				logger.Infof("received %s, shutting down best-effort", sig)
				_ = d.Shutdown(context.Background())
				os.Exit(1)
				return nil
			}
		}
	}
}
