package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch <document-id>",
	Short: "Retrieve a document's bytes through the cached fallback chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		documentID := args[0]

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := env.Pipeline.Retrieve(ctx, documentID)
		if err != nil {
			return err
		}

		if fetchOut == "" || fetchOut == "-" {
			_, err = os.Stdout.Write(data)
			return eris.Wrap(err, "write stdout")
		}

		if err := os.WriteFile(fetchOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", fetchOut)
		}
		zap.L().Info("document written",
			zap.String("document_id", documentID),
			zap.String("path", fetchOut),
			zap.Int("bytes", len(data)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(fetchCmd)
}
