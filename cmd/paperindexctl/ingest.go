package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobinette/paperindex/errors"
	"github.com/bobinette/paperindex/ingest"
)

func init() {
	IngestCommand.PersistentFlags().StringSlice("url", nil, "source URL for each path, in order (optional)")

	RootCmd.AddCommand(&IngestCommand)
}

var IngestCommand = cobra.Command{
	Use:   "ingest",
	Short: "Ingest one or more documents",
	Long:  "Enqueue one or more documents for asynchronous extraction and indexing, and print the resulting report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("ingest expects one or more file paths as arguments", errors.BadRequest())
		}

		urls, err := cmd.Flags().GetStringSlice("url")
		if err != nil {
			return errors.New("could not read --url flag", errors.WithCause(err))
		}

		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		seen := make(map[string]bool, len(args))
		items := make([]ingest.SubmitItem, len(args))
		for i, path := range args {
			if seen[path] {
				return errors.New(fmt.Sprintf("%s was given more than once in this ingest call", path), errors.Conflict())
			}
			seen[path] = true

			var url string
			if i < len(urls) {
				url = urls[i]
			}
			items[i] = ingest.SubmitItem{Path: path, URL: url}
		}

		report := e.IngestAll(items)

		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.New("could not marshal response", errors.WithCause(err))
		}
		cmd.Println(string(data))
		return nil
	},
}
