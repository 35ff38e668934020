package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plate-ingest/config"
	"plate-ingest/internal/container"
	"plate-ingest/internal/infrastructure/logging"
)

func ingestCommand() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest [image]",
		Short: "Run one image through the pipeline and print the outcomes as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			c, err := container.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Pipeline.IngestFromSource(cmd.Context(), source, data)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source label stored with new plates")
	return cmd
}
