package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docref/internal/model"
)

var parseRefsOnly bool

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse citations out of text and resolve them against the registry",
	Long:  "Reads text from the argument or stdin, extracts page references, and resolves them to document preview contexts. With --refs-only the registry is not contacted.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return eris.Wrap(err, "read stdin")
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return eris.New("no text to parse")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		refs := env.Parser.Parse(text)

		out := map[string]any{"references": refs}
		if !parseRefsOnly {
			known, err := env.Registry.ListDocuments(ctx)
			if err != nil {
				zap.L().Warn("document listing failed, resolving against empty set", zap.Error(err))
				known = []model.KnownDocument{}
			}
			out["contexts"] = env.Resolver.Resolve(refs, known)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "encode output")
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseRefsOnly, "refs-only", false, "parse only, skip registry resolution")
	rootCmd.AddCommand(parseCmd)
}
