package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibhukrishnas/sams-core/internal/collector"
	"github.com/vibhukrishnas/sams-core/internal/config"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/metricstore"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/pkg/metrics"
	"github.com/vibhukrishnas/sams-core/internal/repository/memory"
	"github.com/vibhukrishnas/sams-core/internal/repository/sqlite"
	"github.com/vibhukrishnas/sams-core/internal/services"
	"github.com/vibhukrishnas/sams-core/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	defs, err := config.LoadDefinitions(cfg.Definitions.Path)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	var archive *sqlite.Archive
	if cfg.Archive.Enabled {
		archive, err = sqlite.Open(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
	}

	bus := events.NewBus(log)
	defer bus.Close()
	bus.Subscribe(events.SinkFunc(func(e events.Event) {
		log.WithFields(map[string]interface{}{
			"event_type": e.Type,
			"alert_id":   e.AlertID,
			"target_id":  e.TargetID,
			"severity":   e.Severity,
		}).Info("Event emitted")
	}))

	store := metricstore.New(cfg.Alerting.MetricTTL)

	alertRepo := memory.NewAlertRepository()
	targetRepo := memory.NewTargetRepository()
	groupRepo := memory.NewGroupRepository()

	ruleEngine := services.NewRuleEngine(alertRepo, log)
	ruleEngine.SetRules(defs.Rules)

	var archiver services.Archiver
	if archive != nil {
		archiver = archive
	}
	alertSvc := services.NewAlertService(alertRepo, bus, archiver, log)
	if err := alertSvc.SetMaintenanceWindows(defs.MaintenanceWindows); err != nil {
		return err
	}
	alertSvc.SetSuppressionRules(defs.SuppressionRules)

	correlationSvc := services.NewCorrelationService(alertRepo, groupRepo, log)
	correlationSvc.SetWindow(cfg.Correlation.Window)
	correlationSvc.SetThreshold(cfg.Correlation.Threshold)

	pipeline := services.NewPipeline(store, ruleEngine, alertSvc, correlationSvc, log)

	targetSvc := services.NewTargetService(targetRepo, pipeline, bus, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := worker.NewHealthScheduler(targetSvc, worker.SchedulerOptions{
		MaxChecksPerSecond: cfg.Scheduler.MaxChecksPerSecond,
		Retries:            cfg.Scheduler.Retries,
		Backoff:            cfg.Scheduler.RetryBackoff,
	}, log)
	defer scheduler.Stop()

	for _, t := range defs.Targets {
		if err := targetSvc.Register(ctx, t); err != nil {
			return fmt.Errorf("registering target %s: %w", t.ID, err)
		}
		scheduler.ScheduleTarget(ctx, t)
	}

	escalation := worker.NewEscalationSweeper(alertSvc, cfg.Alerting.EscalationSweepInterval, log)
	escalation.SetPolicies(defs.EscalationPolicies)
	go escalation.Start(ctx)

	suppression := worker.NewSuppressionSweeper(alertSvc, correlationSvc, cfg.Alerting.SuppressionSweepInterval, log)
	go suppression.Start(ctx)

	if cfg.Collector.Enabled {
		sys := collector.NewSystem(pipeline, cfg.Collector.TargetID, cfg.Collector.Interval, cfg.Collector.DiskPath, log)
		go sys.Start(ctx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: metrics.Router(),
	}
	go func() {
		log.Infof("Metrics endpoint listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorWithErr(err, "Metrics server failed")
		}
	}()

	log.WithFields(map[string]interface{}{
		"targets":  len(defs.Targets),
		"rules":    len(defs.Rules),
		"policies": len(defs.EscalationPolicies),
	}).Info("Monitoring daemon started")

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr(err, "Metrics server shutdown failed")
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if v := viper.GetString("definitions"); v != "" {
		cfg.Definitions.Path = v
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("log_format"); v != "" {
		cfg.Logging.Format = v
	}
}
