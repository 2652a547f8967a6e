package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobinette/paperindex/errors"
)

func init() {
	RootCmd.AddCommand(&ServeCommand)
}

// ServeCommand runs the engine as a resident process: it starts the
// engine, keeps the ingestion pool and batch writer running in the
// background until SIGINT or SIGTERM arrives, then drains and flushes
// before exiting. The command exposes no transport of its own, so
// nothing can submit ingests or queries to the process while it runs.
var ServeCommand = cobra.Command{
	Use:   "serve",
	Short: "Run the engine as a resident process",
	Long:  "Start the engine and keep its ingestion pool and batch writer running until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		cmd.Println("engine running, press ctrl-c to stop")
		<-sigCh

		cmd.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			return errors.New("shutdown failed", errors.WithCause(err))
		}
		return nil
	},
}
