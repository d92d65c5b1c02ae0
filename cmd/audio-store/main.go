// Точка входа Audio Store — хранилище аудиофайлов пользователей.
// Команды: serve (HTTP API), migrate (схема БД), reconcile (сверка
// каталога и blob-хранилища).
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/config"
)

// Общие для всех команд конфигурация и логгер, заполняются в PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "audio-store",
	Short:         "Хранилище аудиофайлов",
	Long:          `Audio Store — загрузка, воспроизведение и управление аудиофайлами пользователей.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = config.SetupLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Ошибка выполнения команды", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
