package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Upstream.APIKey != "" {
			shown.Upstream.APIKey = "<redacted>"
		}

		out, err := yaml.Marshal(shown)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		_, err = os.Stdout.Write(out)
		return eris.Wrap(err, "write config")
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
