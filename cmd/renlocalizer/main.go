// Command renlocalizer drives one localization pipeline run for a Ren'Py
// project: it loads configuration, builds the translation manager and
// pipeline orchestrator the teacher's server command builds its own
// provider/auth stack from, and renders progress either with a bubbletea UI
// (a real terminal) or plain log lines (piped output, CI).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/cache"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/diagnostics"
	"github.com/renlocalizer/renlocalizer/internal/logging"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/pipeline"
	"github.com/renlocalizer/renlocalizer/internal/proxypool"
	"github.com/renlocalizer/renlocalizer/internal/rpy"
	"github.com/renlocalizer/renlocalizer/internal/statusapi"
	"github.com/renlocalizer/renlocalizer/internal/xlate"
)

func main() {
	var (
		configPath  = flag.String("config", "renlocalizer.yaml", "path to the YAML config file")
		inputPath   = flag.String("input", ".", "project root, game/ directory, or .exe beside game/")
		statusAddr  = flag.String("status-addr", "", "optional address (e.g. :8080) to serve the status/event HTTP API on")
		historyPath = flag.String("history", "", "optional path to a sqlite run-history database")
	)
	flag.Parse()

	logging.Configure(logging.SetupOptions{Level: log.InfoLevel, ThrottleNonCritical: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Warn("renlocalizer: using defaults, config load failed")
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("renlocalizer: invalid configuration")
	}

	rules, err := rpy.LoadNeverTranslateRules(cfg.Translation.NeverTranslateRulesPath)
	if err != nil {
		log.WithError(err).Fatal("renlocalizer: loading never-translate rules")
	}

	translationCache := cache.NewTranslationCache(4096)
	if cfg.Translation.UseGlobalCache {
		if err := translationCache.LoadFromFile(cfg.Translation.CachePath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("renlocalizer: loading translation cache")
		}
	}

	pool, err := proxypool.New(cfg.Proxy)
	if err != nil {
		log.WithError(err).Fatal("renlocalizer: building proxy pool")
	}
	if cfg.Proxy.AutoRotate {
		pool.StartAutoRotate()
		defer pool.Stop()
	}

	manager, err := xlate.BuildManager(cfg, translationCache, pool)
	if err != nil {
		log.WithError(err).Fatal("renlocalizer: building translation manager")
	}

	history, err := diagnostics.OpenHistory(*historyPath)
	if err != nil {
		log.WithError(err).Fatal("renlocalizer: opening run history")
	}
	if history != nil {
		defer history.Close()
	}

	orch := pipeline.New(cfg, manager, rules, history)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.Stop()
	}()

	if *statusAddr != "" {
		srv := statusapi.New(orch, history, resolveGameDir(*inputPath))
		go func() {
			if err := srv.ListenAndServe(*statusAddr); err != nil {
				log.WithError(err).Warn("renlocalizer: status API server stopped")
			}
		}()
	}

	var result *model.PipelineResult
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		result = runWithProgressUI(ctx, orch, *inputPath)
	} else {
		result = runWithPlainLogs(ctx, orch, *inputPath)
	}

	if cfg.Translation.UseGlobalCache {
		if err := translationCache.SaveToFile(cfg.Translation.CachePath); err != nil {
			log.WithError(err).Warn("renlocalizer: saving translation cache")
		}
	}

	if result == nil || !result.Success {
		fmt.Fprintln(os.Stderr, "renlocalizer: run failed")
		os.Exit(1)
	}
}

func resolveGameDir(inputPath string) string {
	info, err := os.Stat(inputPath)
	if err != nil {
		return inputPath
	}
	if info.IsDir() {
		if info.Name() == "game" {
			return inputPath
		}
		return inputPath + string(os.PathSeparator) + "game"
	}
	return inputPath
}
