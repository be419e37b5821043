package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"whitelabel_crm_backend/internal/contacts"
	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/internal/routing"
	"whitelabel_crm_backend/internal/scheduler"
	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/db"
	"whitelabel_crm_backend/platform/logger"
	"whitelabel_crm_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "schedule", cfg.GetLeadSchedule())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	// Worker-side lead inbox wiring (no HTTP handlers required).
	routingModule, err := routing.NewModule(pool, validator.New(), log)
	if err != nil {
		log.Error("failed to initialize routing module", "error", err)
		panic("failed to initialize routing module: " + err.Error())
	}
	leadInbox := leadinbox.NewModule(pool, routingModule.Service(), contacts.NewStore(pool), eventBus, nil, cfg, log).Service()

	leadCron, err := scheduler.NewLeadInboxCron(cfg.GetLeadSchedule(), leadInbox, log)
	if err != nil {
		log.Error("failed to initialize lead inbox cron", "error", err)
		panic("failed to initialize lead inbox cron: " + err.Error())
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		leadCron.Run(groupCtx)
		return nil
	})

	if worker := initWorker(cfg, leadInbox, log); worker != nil {
		group.Go(func() error {
			worker.Run(groupCtx)
			return nil
		})
	}

	_ = group.Wait()
	log.Info("scheduler stopped")
}

func initWorker(cfg config.SchedulerConfig, runner leadinbox.PassRunner, log *logger.Logger) *scheduler.Worker {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; lead inbox runs on the cron schedule only")
		return nil
	}

	worker, err := scheduler.NewWorker(cfg, runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}
	return worker
}
