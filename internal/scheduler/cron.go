package scheduler

import (
	"context"
	"fmt"
	"time"

	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/platform/logger"

	"github.com/robfig/cron/v3"
)

const defaultLeadInboxSchedule = "@every 1m"

// LeadInboxCron runs a lead inbox pass on a fixed schedule. A tick that fires while
// the previous pass is still running is skipped.
type LeadInboxCron struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	runner   leadinbox.PassRunner
	log      *logger.Logger
}

func NewLeadInboxCron(spec string, runner leadinbox.PassRunner, log *logger.Logger) (*LeadInboxCron, error) {
	if spec == "" {
		spec = defaultLeadInboxSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid lead inbox schedule %q: %w", spec, err)
	}

	cronLog := cronLogger{log: log}
	return &LeadInboxCron{
		cron:     cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		schedule: schedule,
		spec:     spec,
		runner:   runner,
		log:      log,
	}, nil
}

// Run blocks until ctx is cancelled and the running pass, if any, has returned.
func (c *LeadInboxCron) Run(ctx context.Context) {
	if c == nil || c.cron == nil {
		return
	}

	c.cron.Schedule(c.schedule, cron.FuncJob(func() { c.runOnce(ctx) }))
	c.cron.Start()
	c.log.Info("lead inbox cron started", "schedule", c.spec)

	<-ctx.Done()
	<-c.cron.Stop().Done()
}

func (c *LeadInboxCron) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.runner.RunPass(ctx); err != nil {
		c.log.Warn("scheduled lead inbox pass failed", "error", err)
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, normalizeCronArgs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, normalizeCronArgs(keysAndValues)...)...)
}

// normalizeCronArgs formats time values the way the rest of the logs do.
func normalizeCronArgs(keysAndValues []interface{}) []any {
	args := make([]any, len(keysAndValues))
	for i, value := range keysAndValues {
		if t, ok := value.(time.Time); ok {
			value = t.UTC().Format(time.RFC3339)
		}
		args[i] = value
	}
	return args
}
