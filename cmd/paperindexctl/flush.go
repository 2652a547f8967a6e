package main

import (
	"github.com/spf13/cobra"

	"github.com/bobinette/paperindex/errors"
)

func init() {
	RootCmd.AddCommand(&FlushCommand)
	RootCmd.AddCommand(&MergeCommand)
}

var FlushCommand = cobra.Command{
	Use:   "flush",
	Short: "Force an immediate batch flush",
	Long:  "Flush any pending ingested documents to disk immediately, bypassing the size and interval triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		if err := e.FlushNow(); err != nil {
			return errors.New("flush failed", errors.WithCause(err))
		}
		cmd.Println("flush complete")
		return nil
	},
}

var MergeCommand = cobra.Command{
	Use:   "merge",
	Short: "Force an immediate delta merge",
	Long:  "Merge the hot delta shard into the main barrel index immediately, bypassing the advisory threshold check",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		if err := e.MergeDelta(); err != nil {
			return errors.New("merge failed", errors.WithCause(err))
		}
		cmd.Println("merge complete")
		return nil
	},
}
