package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции БД",
	Long:  `Применяет все SQL-миграции. С флагом --down откатывает указанное число последних миграций.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetInt("down")
		if down > 0 {
			return database.MigrateDown(cfg, down, logger)
		}
		return database.Migrate(cfg, logger)
	},
}

func init() {
	migrateCmd.Flags().Int("down", 0, "откатить N последних миграций")
}
