package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultPollInterval = 30 * time.Second

// PollingStrategy signals on a fixed interval using a cron scheduler.
type PollingStrategy struct {
	interval time.Duration
	signal   SignalFunc
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewPollingStrategy creates a strategy that signals every interval. Zero
// means DefaultPollInterval.
func NewPollingStrategy(interval time.Duration, signal SignalFunc, logger *zap.Logger) *PollingStrategy {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PollingStrategy{
		interval: interval,
		signal:   signal,
		logger:   logger,
	}
}

// Start schedules the signal every interval. Signals are skipped once ctx is done.
func (p *PollingStrategy) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return fmt.Errorf("polling strategy is already started")
	}
	if p.signal == nil {
		return fmt.Errorf("polling strategy needs a signal function")
	}
	// cron's @every has one second resolution
	if p.interval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %v", p.interval)
	}

	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithLogger(NewZapCronLogger(p.logger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		if runCtx.Err() != nil {
			return
		}
		p.signal(runCtx, "poll")
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule polling: %w", err)
	}

	c.Start()
	p.cron = c
	p.cancel = cancel

	p.logger.Debug("Polling refresh started", zap.Duration("interval", p.interval))
	return nil
}

// Stop halts the schedule and waits for a running signal to return.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	c := p.cron
	cancel := p.cancel
	p.cron = nil
	p.cancel = nil
	p.mu.Unlock()

	if c == nil {
		return nil
	}

	cancel()
	<-c.Stop().Done()
	return nil
}

func (p *PollingStrategy) Mode() Mode {
	return ModePoll
}

// Interval returns the polling interval.
func (p *PollingStrategy) Interval() time.Duration {
	return p.interval
}

// ZapCronLogger adapts a zap.Logger to the cron.Logger interface. Cron's
// routine messages go to debug level.
type ZapCronLogger struct {
	logger *zap.Logger
}

// NewZapCronLogger wraps logger for cron.WithLogger.
func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	return &ZapCronLogger{logger: logger}
}

func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, cronFields(keysAndValues)...)
}

func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append([]zap.Field{zap.Error(err)}, cronFields(keysAndValues)...)
	z.logger.Error(msg, fields...)
}

func cronFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
