package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/database"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/service"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Однократная сверка каталога и blob-хранилища",
	Long: `Находит записи каталога без данных и blob'ы без записей.
По умолчанию только отчёт; --delete-orphans удаляет сирот старше AS_RECONCILE_ORPHAN_GRACE.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deleteOrphans, _ := cmd.Flags().GetBool("delete-orphans")

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		blobs, closeBlobs, err := openBlobStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeBlobs()

		svc := service.NewReconcileService(
			repository.NewAudioFileCatalog(pool),
			blobs,
			service.ReconcileOptions{
				OrphanGrace:   cfg.ReconcileOrphanGrace,
				DeleteOrphans: deleteOrphans || cfg.ReconcileDeleteOrphans,
			},
			logger,
		)

		res, err := svc.RunOnce(ctx)
		if err != nil {
			return err
		}

		for _, h := range res.DanglingRecords {
			logger.Warn("Запись без данных", slog.String("handle", h))
		}
		for _, h := range res.Orphans {
			logger.Info("Blob без записи", slog.String("handle", h))
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"dangling=%d orphans=%d deleted=%d young=%d errors=%d duration=%s\n",
			len(res.DanglingRecords), len(res.Orphans), res.OrphansDeleted,
			res.YoungOrphans, res.Errors, res.Duration)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().Bool("delete-orphans", false, "удалить blob'ы без записей")
}
