package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/dares/pkg/dares/api"
	"github.com/tsarna/dares/pkg/dares/bus"
	"github.com/tsarna/dares/pkg/dares/config"
	"github.com/tsarna/dares/pkg/dares/o11y"
	"github.com/tsarna/dares/pkg/dares/realtime"
	"github.com/tsarna/dares/pkg/dares/refresh"
	"github.com/tsarna/dares/pkg/dares/session"
	"github.com/tsarna/dares/pkg/dares/subutils"
	"go.uber.org/zap"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [event-patterns...]",
	Short: "Follow the realtime event stream",
	Long: `Connect to the realtime endpoint and print every matching event to stdout
as "<event>\t<json>".

Patterns use MQTT-style wildcards over event names ("+" matches one level,
"#" everything). With no patterns every event is printed.

When realtime is unavailable (for example an https origin without
VITE_WS_URL) notifications are polled instead, as configured by the
refresh block.

Examples:
  dares listen
  dares listen notification dare_updated
  dares listen --jq '{id: .id, msg: .message}' notification`,
	RunE: runListen,
}

var (
	listenJq              string
	listenQueueSize       int
	listenMetricsInterval time.Duration
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenJq, "jq", "", "JQ query applied to each payload before printing ($event holds the event name)")
	listenCmd.Flags().IntVar(&listenQueueSize, "queue-size", 100, "events buffered between the connection and the printer")
	listenCmd.Flags().DurationVar(&listenMetricsInterval, "metrics-interval", 0, "publish client metrics as $metrics events at this interval (0 disables)")
}

func runListen(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	logger := env.logger
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	patterns := args
	if len(patterns) == 0 {
		patterns = []string{"#"}
	}

	var metrics *o11y.StandaloneMetricsProvider
	var provider o11y.MetricsProvider
	busBuilder := bus.New().WithLogger(logger).WithName("listen")
	if listenMetricsInterval > 0 {
		metrics = o11y.NewStandaloneMetricsProvider(nil, &o11y.StandaloneMetricsConfig{
			Interval:    listenMetricsInterval,
			ServiceName: "dares",
		})
		provider = metrics
		busBuilder = busBuilder.WithMetrics(provider)
	}

	eventBus, err := busBuilder.Build()
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	if metrics != nil {
		metrics.SetEmitter(eventBus)
		if err := metrics.Start(); err != nil {
			return fmt.Errorf("failed to start metrics: %w", err)
		}
		defer metrics.Stop()
	}

	var printer bus.Handler = newPrintingHandler(cmd.OutOrStdout(), logger)
	if listenJq != "" {
		if printer, err = subutils.JqHandler(listenJq, printer, logger); err != nil {
			return err
		}
	}

	async := subutils.NewAsyncHandler(printer, listenQueueSize, logger).Start()
	defer async.Close()

	handler := subutils.LoggingHandler(async.Handle, logger, zap.DebugLevel, "listen")
	for _, pattern := range patterns {
		unsubscribe := eventBus.SubscribePattern(pattern, handler)
		defer unsubscribe()
	}

	store, err := env.sessionStore()
	if err != nil {
		return err
	}

	client, err := startRealtime(ctx, env.config, eventBus, store, provider, logger)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() {
			if err := client.Disconnect(); err != nil {
				logger.Warn("Error during client disconnect", zap.Error(err))
			}
		}()
	}

	strategy, err := startRefresh(ctx, env, eventBus, store, client != nil)
	if err != nil {
		return err
	}
	if strategy != nil {
		defer strategy.Stop()
	}

	logger.Info("Listening for events... (Press Ctrl+C to exit)", zap.Strings("patterns", patterns))

	<-ctx.Done()
	logger.Debug("Signal received, exiting")
	return nil
}

// startRealtime connects when an endpoint can be resolved. It returns a nil
// client when realtime is disabled.
func startRealtime(ctx context.Context, cfg *config.Config, eventBus *bus.Bus, store *session.FileStore, metrics o11y.MetricsProvider, logger *zap.Logger) (*realtime.Client, error) {
	endpoint, err := cfg.Realtime.Endpoint(cfg.API.BaseURL)
	if errors.Is(err, realtime.ErrRealtimeDisabled) {
		logger.Info("Realtime disabled, falling back to polling", zap.String("api", cfg.API.BaseURL))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token, err := store.Token(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return nil, err
	}

	builder := realtime.NewClient().
		WithURL(endpoint).
		WithBus(eventBus).
		WithLogger(logger).
		WithReconnectDelay(cfg.Realtime.ReconnectDelay).
		WithMaxReconnectAttempts(cfg.Realtime.MaxReconnectAttempts).
		WithDialTimeout(cfg.Realtime.DialTimeout)
	if metrics != nil {
		builder = builder.WithMetrics(metrics)
	}

	client, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime client: %w", err)
	}

	if err := client.Connect(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return client, nil
}

// startRefresh refetches notifications whenever the chosen strategy signals.
// It does nothing without a stored session.
func startRefresh(ctx context.Context, env *environment, eventBus *bus.Bus, store *session.FileStore, realtimeAvailable bool) (refresh.Strategy, error) {
	logger := env.logger

	if _, err := store.Token(ctx); err != nil {
		logger.Info("Not logged in, notification refresh disabled", zap.Error(err))
		return nil, nil
	}

	client, err := env.apiClient(store)
	if err != nil {
		return nil, err
	}

	pageSize := env.config.Pagination.PageSize
	onSignal := func(ctx context.Context, reason string) {
		page, err := client.Notifications(ctx, 1, pageSize)
		if err != nil {
			logger.Warn("Notification refresh failed", zap.String("reason", reason), zap.String("message", api.Message(err)), zap.Error(err))
			return
		}

		unread := 0
		for _, n := range page.Items {
			if !n.Read {
				unread++
			}
		}
		logger.Info("Notifications refreshed",
			zap.String("reason", reason),
			zap.Int("total", page.Info.Total),
			zap.Int("unread-on-first-page", unread))
	}

	push := refresh.NewPushStrategy(eventBus, env.config.Refresh.Events, onSignal, logger)
	poll := refresh.NewPollingStrategy(env.config.Refresh.PollInterval, onSignal, logger)

	strategy, err := chooseStrategy(env.config.Refresh.Mode, realtimeAvailable, push, poll)
	if err != nil {
		return nil, err
	}

	if err := strategy.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s refresh: %w", strategy.Mode(), err)
	}
	logger.Info("Notification refresh started", zap.Stringer("mode", strategy.Mode()))
	return strategy, nil
}

func chooseStrategy(mode string, realtimeAvailable bool, push, poll refresh.Strategy) (refresh.Strategy, error) {
	switch mode {
	case config.RefreshPush:
		if !realtimeAvailable {
			return nil, errors.New("refresh mode push requires a realtime endpoint")
		}
		return push, nil
	case config.RefreshPoll:
		return poll, nil
	case config.RefreshAuto, "":
		return refresh.Select(realtimeAvailable, push, poll), nil
	default:
		return nil, fmt.Errorf("unknown refresh mode %q", mode)
	}
}

// newPrintingHandler writes "<event>\t<json>" lines. Writes are serialized so
// lines never interleave.
func newPrintingHandler(out io.Writer, logger *zap.Logger) bus.Handler {
	var mu sync.Mutex

	return func(ctx context.Context, event string, payload any) error {
		jsonBytes, err := json.Marshal(payload)

		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			fmt.Fprintf(out, "%s\t<error marshaling JSON: %v>\n", event, err)
			logger.Warn("Failed to marshal payload to JSON",
				zap.String("event", event),
				zap.Error(err))
			return nil
		}
		fmt.Fprintf(out, "%s\t%s\n", event, jsonBytes)
		return nil
	}
}
