package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/auth"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Connect to Google Drive in the browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token",
		RunE:  runLogout,
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Sign out and forget the cached Drive file",
		Long: "Removes the saved token and the cached Drive file id. " +
			"The prompts file on Drive is left in place.",
		RunE: runDisconnect,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	mgr := newAuthManager(logger)

	if !mgr.IsConfigured() {
		return errors.New("client_id is not set: add it to the config file before logging in")
	}

	logger.Info("login started")

	// The consent page must open regardless of --quiet.
	fmt.Fprintln(cmd.ErrOrStderr(), "Opening your browser to sign in to Google Drive...")

	account, err := mgr.Authenticate(ctx)
	if err != nil {
		var ae *auth.Error
		if errors.As(err, &ae) {
			return fmt.Errorf("login failed: %s", ae.Message)
		}

		return fmt.Errorf("login failed: %w", err)
	}

	logger.Info("login successful", "account", account)

	if account != "" {
		statusf("Connected as %s.\n", account)
	} else {
		statusf("Connected.\n")
	}

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	mgr := newAuthManager(logger)
	mgr.ClearAll()

	logger.Info("logout complete")
	statusf("Logged out.\n")

	return nil
}

func runDisconnect(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	eng, err := newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // read-mostly teardown

	res := eng.sync.Disconnect(ctx)

	if flagJSON {
		return printJSON(res)
	}

	if res.WasAuthenticated {
		statusf("Disconnected from Google Drive.\n")
	} else {
		statusf("Already disconnected.\n")
	}

	return nil
}
