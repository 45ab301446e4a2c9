package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docref/internal/model"
	"github.com/sells-group/docref/internal/store"
)

var (
	retrievalsDocument string
	retrievalsOutcome  string
	retrievalsLimit    int
)

var retrievalsCmd = &cobra.Command{
	Use:   "retrievals",
	Short: "Inspect the retrieval audit trail",
}

func openAuditStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	path := cfg.Store.Path
	if path == "" {
		path = filepath.Join(cfg.Cache.Dir, "retrievals.db")
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

var retrievalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded retrievals, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListRetrievals(cmd.Context(), store.RetrievalFilter{
			DocumentID: retrievalsDocument,
			Outcome:    model.RetrievalOutcome(retrievalsOutcome),
			Limit:      retrievalsLimit,
		})
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []model.RetrievalRecord{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(recs), "encode output")
	},
}

var retrievalsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.RetrievalStats(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(stats), "encode output")
	},
}

func init() {
	retrievalsListCmd.Flags().StringVar(&retrievalsDocument, "document", "", "filter by document id")
	retrievalsListCmd.Flags().StringVar(&retrievalsOutcome, "outcome", "", "filter by outcome (cache_hit|fetched|failed|exhausted)")
	retrievalsListCmd.Flags().IntVar(&retrievalsLimit, "limit", 50, "maximum rows")
	retrievalsCmd.AddCommand(retrievalsListCmd, retrievalsStatsCmd)
	rootCmd.AddCommand(retrievalsCmd)
}
