package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pagewatch/internal/app"
	"pagewatch/internal/config"
	"pagewatch/internal/storage"
	logx "pagewatch/pkg/logx"
)

var migrateConfig string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the storage schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Parse without full validation: the bot token is not needed here.
		cfg, err := config.NewConfigManager(migrateConfig).Parse()
		if err != nil {
			return err
		}
		sc := app.StorageConfig(cfg)
		log := logx.NewWriter(cmd.ErrOrStderr(), "info").With(logx.String("comp", "migrate"))
		if err := storage.Migrate(cmd.Context(), sc, log); err != nil {
			return fmt.Errorf("migrate %s: %w", sc.Driver, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", sc.Driver)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVarP(&migrateConfig, "config", "c", "./config.json", "path to the config file (JSON or YAML)")
	rootCmd.AddCommand(migrateCmd)
}
