package scheduler

import (
	"context"
	"fmt"

	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner leadinbox.PassRunner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner leadinbox.PassRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		log:    log,
	}

	mux.HandleFunc(TaskLeadInboxProcess, w.handleLeadInboxProcess)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadInboxProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadInboxProcessPayload(task)
	if err != nil {
		return fmt.Errorf("parse lead inbox task: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.runner.RunPass(ctx)
	if err != nil {
		return err
	}

	w.log.Debug("lead inbox task finished",
		"trigger", payload.Trigger,
		"processed", result.Batch.Processed,
		"recovered", result.Recovered,
	)
	return nil
}
