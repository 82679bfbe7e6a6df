package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsarna/dares/pkg/dares/session"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for later commands",
	Long: `Store tokens issued by the dares server in the local session file.

Examples:
  dares login --access-token eyJhbGciOi...
  dares login --access-token "$TOKEN" --refresh-token "$REFRESH" --user '{"id":"u1","username":"ana"}'`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var impersonateCmd = &cobra.Command{
	Use:   "impersonate [access-token]",
	Short: "Act as another user, or return to your own account with --stop",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImpersonate,
}

var (
	loginAccessToken  string
	loginRefreshToken string
	loginUser         string
	impersonateStop   bool
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(impersonateCmd)

	loginCmd.Flags().StringVar(&loginAccessToken, "access-token", "", "access token (required)")
	loginCmd.Flags().StringVar(&loginRefreshToken, "refresh-token", "", "refresh token")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "user profile as JSON")
	_ = loginCmd.MarkFlagRequired("access-token")

	impersonateCmd.Flags().BoolVar(&impersonateStop, "stop", false, "restore the original token")
	impersonateCmd.Flags().StringVar(&loginUser, "user", "", "impersonated user profile as JSON")
}

func userJSON(raw string) (json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("--user must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	user, err := userJSON(loginUser)
	if err != nil {
		return err
	}

	store, err := env.sessionStore()
	if err != nil {
		return err
	}

	if err := store.Save(session.Data{
		AccessToken:  loginAccessToken,
		RefreshToken: loginRefreshToken,
		User:         user,
	}); err != nil {
		return err
	}

	env.logger.Info("Session stored", zap.String("path", store.Path()))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	store, err := env.sessionStore()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}

	env.logger.Info("Logged out", zap.String("path", store.Path()))
	return nil
}

func runImpersonate(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	store, err := env.sessionStore()
	if err != nil {
		return err
	}

	if impersonateStop {
		if len(args) > 0 {
			return errors.New("--stop takes no token")
		}
		return store.StopImpersonating()
	}

	if len(args) == 0 {
		return errors.New("an access token is required unless --stop is given")
	}

	user, err := userJSON(loginUser)
	if err != nil {
		return err
	}
	if err := store.Impersonate(args[0], user); err != nil {
		return fmt.Errorf("failed to impersonate: %w", err)
	}

	env.logger.Info("Impersonation started")
	return nil
}
