package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SanJoeng/ChatLab/pkg/chatstore"
)

var (
	importChatKey string
	importWatch   bool
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import chat export files into the corpus",
	Long: `Import reads chat export files (JSON arrays of messages) into the
local corpus. Messages already present are skipped. With --watch, the
configured export directory is watched and re-imported on change, and
embeddings are synced on the configured schedule.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importChatKey, "chat", "default", "chat corpus to import into")
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "watch the export directory for changes")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !importWatch {
		return fmt.Errorf("nothing to import: pass export files or --watch")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, path := range args {
		n, err := a.store.ImportFile(ctx, importChatKey, path)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		fmt.Printf("%s: %d new messages\n", filepath.Base(path), n)
	}

	if !importWatch {
		if n, err := a.store.SyncEmbeddings(ctx, a.cfg.Sync.BatchSize); err != nil {
			zl := a.log.GetZerolog()
			zl.Warn().Err(err).Msg("Embedding sync failed")
		} else if n > 0 {
			fmt.Printf("embedded %d messages\n", n)
		}
		return nil
	}

	return watchExports(ctx, a)
}

// watchExports re-imports the export directory on change until the context
// is canceled.
func watchExports(ctx context.Context, a *app) error {
	dir := a.cfg.Chat.ExportDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	importDir := func() {
		zl := a.log.GetZerolog()
		entries, err := os.ReadDir(dir)
		if err != nil {
			zl.Warn().Err(err).Msg("Failed to read export directory")
			return
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			n, err := a.store.ImportFile(ctx, importChatKey, path)
			if err != nil {
				zl.Warn().Err(err).Str("file", entry.Name()).Msg("Import failed")
				continue
			}
			if n > 0 {
				zl.Info().Str("file", entry.Name()).Int("messages", n).Msg("Imported export")
			}
		}
	}

	watcher, err := chatstore.NewExportWatcher(a.log.GetZerolog(), importDir)
	if err != nil {
		return fmt.Errorf("failed to create export watcher: %w", err)
	}
	defer watcher.Stop()

	if err := watcher.Watch(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	scheduler, err := chatstore.NewSyncScheduler(a.store, a.cfg.Sync.Schedule, a.log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create sync scheduler: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Pick up whatever is already in the directory.
	importDir()

	fmt.Printf("watching %s (ctrl-c to stop)\n", dir)
	<-ctx.Done()
	return nil
}
