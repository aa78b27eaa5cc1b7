package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the token cache",
}

var tokenKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new TOKEN_CACHE_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "TOKEN_CACHE_KEY=%s\n", hex.EncodeToString(key))
		return err
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached tokens for the configured client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.New(envFile)
		if err != nil {
			return err
		}
		setupLogging(c)
		if c.GetTokenCachePath() == "" {
			return fmt.Errorf("TOKEN_CACHE_PATH is not set; the in-memory cache has nothing to clear")
		}

		_, store, err := openTokenCache(c)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(context.Background(), c.GetClientID()); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared cached tokens for %s\n", c.GetClientID())
		return err
	},
}

func init() {
	tokenCmd.AddCommand(tokenKeygenCmd, tokenClearCmd)
}
