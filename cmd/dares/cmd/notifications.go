package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tsarna/dares/pkg/dares/api"
	"github.com/tsarna/dares/pkg/dares/pagination"
	"go.uber.org/zap"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List your notifications one page at a time",
	Long: `List notifications for the logged-in user.

Examples:
  dares notifications
  dares notifications --page 2 --page-size 20
  dares notifications read
  dares notifications read 12 13`,
	Args: cobra.NoArgs,
	RunE: runNotifications,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [notification-ids...]",
	Short: "Mark notifications as read (all of them when no ids are given)",
	RunE:  runNotificationsRead,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

var (
	notificationsPage     int
	notificationsPageSize int
)

func init() {
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)

	notificationsCmd.Flags().IntVar(&notificationsPage, "page", 1, "page to show")
	notificationsCmd.Flags().IntVar(&notificationsPageSize, "page-size", 0, "notifications per page (default from the pagination block)")
}

// userError logs the full failure and returns only the static message meant
// for people.
func userError(logger *zap.Logger, action string, err error) error {
	logger.Debug("Request failed", zap.String("action", action), zap.Error(err))
	return errors.New(api.Message(err))
}

func runNotifications(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	logger := env.logger
	defer logger.Sync()

	store, err := env.sessionStore()
	if err != nil {
		return err
	}
	client, err := env.apiClient(store)
	if err != nil {
		return err
	}

	pageSize := notificationsPageSize
	if pageSize <= 0 {
		pageSize = env.config.Pagination.PageSize
	}

	paginator := pagination.New(
		pagination.WithPageSize(pageSize),
		pagination.WithMaxPageSize(env.config.Pagination.MaxPageSize),
		pagination.WithLogger(logger),
	)

	page, err := client.Notifications(context.Background(), max(notificationsPage, 1), paginator.PageSize())
	if err != nil {
		return userError(logger, "notifications", err)
	}

	items := page.Items
	if page.HasInfo {
		paginator.ApplyServerPage(page.Info)
	} else {
		// The server returned everything; page locally.
		paginator.SetTotalItems(len(items))
		_ = paginator.SetCurrentPage(notificationsPage)
		items = pagination.Slice(paginator, items)
	}

	printNotifications(cmd.OutOrStdout(), items, paginator.Snapshot())
	return nil
}

func printNotifications(out io.Writer, items []api.Notification, snap pagination.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREAD\tTYPE\tMESSAGE")
	for _, n := range items {
		read := " "
		if n.Read {
			read = "x"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, read, n.Type, n.Message)
	}
	w.Flush()

	fmt.Fprintf(out, "\nPage %d of %d (%d total)", snap.CurrentPage, snap.TotalPages, snap.TotalItems)
	if snap.HasNextPage {
		fmt.Fprintf(out, ", next: --page %d", snap.CurrentPage+1)
	}
	fmt.Fprintln(out)
}

func runNotificationsRead(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	logger := env.logger
	defer logger.Sync()

	store, err := env.sessionStore()
	if err != nil {
		return err
	}
	client, err := env.apiClient(store)
	if err != nil {
		return err
	}

	if err := client.MarkNotificationsRead(context.Background(), args); err != nil {
		return userError(logger, "mark notifications read", err)
	}

	logger.Info("Notifications marked as read", zap.Int("count", len(args)), zap.Bool("all", len(args) == 0))
	return nil
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	logger := env.logger
	defer logger.Sync()

	store, err := env.sessionStore()
	if err != nil {
		return err
	}
	client, err := env.apiClient(store)
	if err != nil {
		return err
	}

	entries, err := client.Leaderboard(context.Background())
	if err != nil {
		return userError(logger, "leaderboard", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tSCORE")
	for i, e := range entries {
		rank := e.Rank
		if rank == 0 {
			rank = i + 1
		}
		fmt.Fprintf(w, "%d\t%s\t%g\n", rank, e.Username, e.Score)
	}
	return w.Flush()
}
