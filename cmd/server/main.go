package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "auth-session",
	Short: "Keycloak-backed session shell",
	Long: `Runs a single-user application shell that keeps one authentication session
in step with a Keycloak realm.

Configuration is read from the environment after merging the --env-file (default
.env). KEYCLOAK_URL, KEYCLOAK_REALM and KEYCLOAK_CLIENT_ID are required.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file merged into the environment (optional)")
	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
