package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docref/internal/docstore"
)

var cacheClearOlderThan int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the on-disk document cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, err := docstore.NewDiskCache(cfg.Cache.Dir)
		if err != nil {
			return err
		}

		files, err := disk.List()
		if err != nil {
			return err
		}
		if files == nil {
			files = []docstore.CachedFile{}
		}

		total, err := disk.TotalSize()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(map[string]any{
			"fileCount": len(files),
			"totalSize": total,
			"files":     files,
		}), "encode output")
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, err := docstore.NewDiskCache(cfg.Cache.Dir)
		if err != nil {
			return err
		}

		removed, err := disk.PurgeOlderThan(time.Duration(cacheClearOlderThan) * time.Hour)
		if err != nil {
			return err
		}
		zap.L().Info("cache cleared",
			zap.Int("removed", removed),
			zap.Int("older_than_hours", cacheClearOlderThan),
		)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().IntVar(&cacheClearOlderThan, "older-than", 0, "only delete entries older than this many hours (0 = all)")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
