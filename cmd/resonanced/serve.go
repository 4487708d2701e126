package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"resonance/internal/api"
	"resonance/internal/config"
	"resonance/internal/emotion"
	"resonance/internal/health"
	"resonance/internal/metrics"
	"resonance/internal/orchestrator"
	"resonance/internal/personalization"
	"resonance/internal/resonance"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the touch pipeline and HTTP API",
	Long: `Loads the configuration and profile, starts the pipeline and serves the
HTTP API until interrupted. The configuration file is watched and privacy
settings are applied on change; other sections take effect on restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	log := logger.WithComponent("daemon")

	audit, err := newAuditLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup audit log: %w", err)
	}
	defer audit.Close()

	blobs, blobCloser, err := openBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer blobCloser.Close()

	profile := newProfileStore(cfg, blobs, audit, logger.WithComponent("personalization"))

	registry := metrics.NewRegistry("resonance")
	orch, err := orchestrator.New(orchestrator.Deps{
		Classifier: emotion.NewHeuristic(),
		Mapper:     resonance.NewMapper(),
		Profile:    profile,
		Recorder:   metrics.NewPipeline(registry),
		Logger:     logger.WithComponent("orchestrator"),
	},
		orchestrator.WithConfidenceThreshold(cfg.Software.ConfidenceThreshold),
		orchestrator.WithMaxLatency(cfg.MaxLatency()),
		orchestrator.WithMaxMemoryMB(float64(cfg.Performance.MaxMemoryMB)),
		orchestrator.WithMetricsInterval(cfg.MetricsInterval()),
		orchestrator.WithWindowSize(cfg.Performance.LatencyWindow),
		orchestrator.WithContextIDs(cfg.Software.ApplicationID, cfg.Hardware.DeviceID),
		orchestrator.WithLearning(cfg.Software.AdaptiveLearning),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Initialize(ctx); err != nil {
		orch.Close()
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	profile.SetPrivacy(privacyFromConfig(cfg))
	profile.PruneExpired(time.Now())

	audit.SetSessionID(orch.Statistics().SessionID)
	_ = audit.LogStartup(ctx, Version, map[string]any{
		"config":  loader.Path(),
		"profile": cfg.Privacy.ProfileID,
		"storage": cfg.Storage.Type,
	})

	loader.OnChange(func(old, updated *config.Config) {
		profile.SetPrivacy(privacyFromConfig(updated))
		profile.PruneExpired(time.Now())
		_ = audit.LogConfigChange(context.Background(), loader.Path(), nil)
		log.Info("configuration reloaded", "path", loader.Path())
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch disabled", "error", err)
	}
	defer loader.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-loader.Errors():
				_ = audit.LogConfigChange(gctx, loader.Path(), err)
				log.Warn("config reload rejected", "error", err)
			}
		}
	})

	checker := health.NewChecker()
	checker.Register(health.Component{Name: "pipeline", Critical: true, Check: health.PipelineCheck(orch.Status)})
	checker.Register(health.Component{Name: "profile_store", Critical: true, Check: health.StoreCheck(blobs)})
	checker.Register(health.Component{
		Name:  "memory",
		Check: health.MemoryCheck(metrics.MemoryUsageMB, float64(cfg.Performance.MaxMemoryMB)),
	})

	if cfg.Server.Enabled {
		srv := api.New(orch, registry, logger.WithComponent("api"), api.Options{
			Checker:         checker,
			Addr:            cfg.Server.Addr,
			ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
			WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}

	log.Info("resonanced started", "version", Version, "profile", cfg.Privacy.ProfileID)
	runErr := g.Wait()

	reason := "signal"
	if runErr != nil {
		reason = runErr.Error()
	}
	shutdown(orch, profile, cfg, log)
	_ = audit.LogShutdown(context.Background(), reason)
	log.Info("resonanced stopped")
	return runErr
}

// shutdown drains the pipeline and writes the profile.
func shutdown(orch *orchestrator.Orchestrator, profile *personalization.Store, cfg *config.Config, log *slog.Logger) {
	timeout := time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := orch.Disable(ctx); err != nil && !errors.Is(err, orchestrator.ErrInvalidTransition) {
		log.Warn("disable pipeline", "error", err)
	}
	if err := profile.Save(ctx); err != nil {
		log.Warn("save profile", "error", err)
	}
	if err := orch.Close(); err != nil {
		log.Warn("close pipeline", "error", err)
	}
}
