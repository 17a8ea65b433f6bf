package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/config"
	"github.com/mohammed-shakir/adaptive-refresh/internal/control"
	"github.com/mohammed-shakir/adaptive-refresh/internal/httpapi"
	"github.com/mohammed-shakir/adaptive-refresh/internal/logger"
	"github.com/mohammed-shakir/adaptive-refresh/internal/metrics"
	"github.com/mohammed-shakir/adaptive-refresh/internal/observability"
	"github.com/mohammed-shakir/adaptive-refresh/internal/persist/redisstore"
	policyfeed "github.com/mohammed-shakir/adaptive-refresh/internal/policyfeed/kafka"
	"github.com/mohammed-shakir/adaptive-refresh/internal/refreshrate"
	"github.com/mohammed-shakir/adaptive-refresh/internal/touch"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	modesFlag := flag.String("modes", "", "display modes as id:group:period_ns,... (overrides DISPLAY_MODES)")
	activeFlag := flag.Int("active", -1, "active mode id at start-up (overrides DISPLAY_ACTIVE_MODE)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if *modesFlag != "" {
		modes, err := config.ParseModes(*modesFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "-modes:", err)
			return 1
		}
		cfg.Display.Modes = modes
		cfg.Display.ActiveMode = modes[0].ID
	}
	if *activeFlag >= 0 {
		cfg.Display.ActiveMode = catalog.ModeID(*activeFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "refreshd",
		Display:   cfg.Display.ID,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	cat, err := catalog.New(cfg.Display.Modes, cfg.Display.ActiveMode)
	if err != nil {
		appLog.Error("invalid display mode catalog", "err", err)
		return 1
	}

	var (
		reg  prometheus.Registerer
		prov *metrics.Provider
	)
	if cfg.Metrics.Enabled {
		prov = metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		reg = prov.Registerer()
	}
	observability.Init(reg)

	cfgs, err := refreshrate.New(cat, cfg.Display.ActiveMode, refreshrate.Options{
		Logger:             appLog,
		Register:           reg,
		Display:            cfg.Display.ID,
		SelectionCacheSize: cfg.SelectionCacheSize,
	})
	if err != nil {
		appLog.Error("refresh rate state", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting refreshd",
		"addr", cfg.Addr,
		"version", Version,
		"modes", cat.Len(),
		"active", cat.Lookup()[cfg.Display.ActiveMode].Name)

	var (
		persister control.Persister
		pingers   []httpapi.Pinger
	)
	if cfg.Persist.Enabled {
		rc, err := redisstore.New(ctx, cfg.Persist.RedisAddr)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.Persist.RedisAddr, "err", err)
			return 1
		}
		defer func() {
			if err := rc.Close(); err != nil {
				appLog.Warn("redis close", "err", err)
			}
		}()
		persister = rc
		pingers = append(pingers, rc)
	}

	plane := control.New(cfgs, control.Options{
		Logger:    appLog,
		Persister: persister,
		OpTimeout: cfg.Persist.OpTimeout,
		OnChange: func(ctx context.Context, ev control.ChangeEvent) {
			if ev.Switch {
				appLog.InfoContext(ctx, "display mode switch requested",
					"target", ev.Target.Name, "target_id", int(ev.Target.ID), "effective", ev.Effective.String())
			}
		},
	})
	if err := plane.Restore(ctx); err != nil {
		appLog.Warn("restoring persisted policy failed", "err", err)
	}

	feed := policyfeed.New(policyfeed.FromEnv(cfg.Display.ID), cfg.Display.ID, plane, policyfeed.Options{
		Logger:   appLog,
		Register: reg,
	})
	if err := feed.Start(ctx); err != nil {
		appLog.Error("policy feed start failed", "err", err)
		return 1
	}
	defer feed.Stop()

	deps := httpapi.Deps{
		Plane:   plane,
		Touch:   touch.New(cfg.Touch.HalfLife, cfg.Touch.Threshold),
		Logger:  appLog,
		Pingers: pingers,
	}
	if feed.Enabled() {
		deps.Feed = feed
	}
	if prov != nil {
		if cfg.Metrics.Addr == "" {
			deps.Metrics = prov.Handler()
			deps.MetricsPath = prov.Path()
		} else {
			go func() {
				if err := prov.Serve(ctx, appLog); err != nil {
					appLog.Error("metrics server exited", "err", err)
				}
			}()
		}
	}

	err = httpapi.Run(ctx, httpapi.ServerConfig{
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, httpapi.NewRouter(deps), appLog)
	if err != nil {
		appLog.Error("http server exited", "err", err)
		return 1
	}
	appLog.Info("refreshd stopped")
	return 0
}
