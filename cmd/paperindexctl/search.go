package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobinette/paperindex/errors"
)

func init() {
	AutocompleteCommand.PersistentFlags().Int("limit", 10, "maximum number of suggestions")

	RootCmd.AddCommand(&SearchCommand)
	RootCmd.AddCommand(&AutocompleteCommand)
}

var SearchCommand = cobra.Command{
	Use:   "search",
	Short: "Run a query against the index",
	Long:  "Run a query against the index and print the ranked results as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("search expects a query string as argument", errors.BadRequest())
		}

		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		resp := e.Search(strings.Join(args, " "))

		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return errors.New("could not marshal response", errors.WithCause(err))
		}
		cmd.Println(string(data))
		return nil
	},
}

var AutocompleteCommand = cobra.Command{
	Use:   "autocomplete",
	Short: "Complete a term prefix",
	Long:  "Complete a term prefix against the lexicon and print the suggestions as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("autocomplete expects a prefix as argument", errors.BadRequest())
		}

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return errors.New("could not read --limit flag", errors.WithCause(err))
		}

		e, err := newEngine()
		if err != nil {
			return errors.New("could not start engine", errors.WithCause(err))
		}

		resp, err := e.Autocomplete(args[0], limit)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return errors.New("could not marshal response", errors.WithCause(err))
		}
		cmd.Println(string(data))
		return nil
	},
}
