package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/dares/pkg/dares/bus"
	"github.com/tsarna/dares/pkg/dares/realtime"
	"github.com/tsarna/dares/pkg/dares/session"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <event> <payload>",
	Short: "Send one event over the realtime connection",
	Long: `Connect to the realtime endpoint, send a single {"event", "payload"}
envelope and disconnect.

The payload is parsed as JSON; anything that is not valid JSON is sent as a
string.

Examples:
  dares send ping '{}'
  dares send typing '{"gameId": "g1"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var sendTimeout time.Duration

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "total operation timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	logger := env.logger
	defer logger.Sync()

	event := args[0]
	payload := parsePayload(args[1])

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	endpoint, err := env.config.Realtime.Endpoint(env.config.API.BaseURL)
	if err != nil {
		return err
	}

	store, err := env.sessionStore()
	if err != nil {
		return err
	}
	token, err := store.Token(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return err
	}

	eventBus, err := bus.New().WithLogger(logger).WithName("send").Build()
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	opened := make(chan struct{}, 1)
	closed := make(chan string, 1)
	defer eventBus.Subscribe(realtime.EventConnected, func(ctx context.Context, event string, payload any) error {
		select {
		case opened <- struct{}{}:
		default:
		}
		return nil
	})()
	defer eventBus.Subscribe(realtime.EventDisconnected, func(ctx context.Context, event string, payload any) error {
		reason := "connection closed"
		if p, ok := payload.(realtime.DisconnectedPayload); ok && p.Reason != "" {
			reason = p.Reason
		}
		select {
		case closed <- reason:
		default:
		}
		return nil
	})()

	// Single attempt; a failed dial arrives as a disconnected event.
	client, err := realtime.NewClient().
		WithURL(endpoint).
		WithBus(eventBus).
		WithLogger(logger).
		WithMaxReconnectAttempts(0).
		WithDialTimeout(env.config.Realtime.DialTimeout).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create realtime client: %w", err)
	}
	defer client.Disconnect()

	if err := client.Connect(ctx, token); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	select {
	case <-opened:
	case reason := <-closed:
		return fmt.Errorf("failed to connect to %s: %s", endpoint, reason)
	case <-ctx.Done():
		return fmt.Errorf("timed out connecting to %s: %w", endpoint, ctx.Err())
	}

	if client.State() != realtime.StateConnected {
		return errors.New("connection lost before sending")
	}
	if err := client.Send(ctx, event, payload); err != nil {
		return err
	}

	logger.Info("Event sent", zap.String("event", event), zap.String("connection", client.ConnectionID()))
	return nil
}

func parsePayload(s string) any {
	var payload any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return s
	}
	return payload
}
