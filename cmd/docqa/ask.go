package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docqa/docqa/pkg/models"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		documentID string
		filename   string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about an ingested document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := documentID
			if ref == "" {
				ref = filename
			}
			if ref == "" {
				return fmt.Errorf("one of --document or --file is required")
			}

			ctx := context.Background()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.answers.Ask(ctx, ref, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if res.Outcome == models.OutcomeNoDocument {
				fmt.Println(res.Message)
				return nil
			}
			fmt.Println(res.Response)
			fmt.Fprintf(os.Stderr, "(%s, query %q)\n", res.Outcome, res.Query)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "document id")
	cmd.Flags().StringVarP(&filename, "file", "f", "", "document filename")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summarize [filename]",
		Short: "Summarize an ingested invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.answers.Summarize(ctx, args[0])
			if err != nil {
				return err
			}
			if res.Outcome == models.OutcomeNoDocument {
				fmt.Println(res.Message)
				return nil
			}
			fmt.Println(res.Summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "extract [filename]",
		Short: "Extract structured fields from an ingested invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.answers.ExtractFields(ctx, args[0])
			if err != nil {
				return err
			}
			if res.Outcome == models.OutcomeNoDocument {
				fmt.Println(res.Message)
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Fields)
			}

			keys := make([]string, 0, len(res.Fields))
			for k := range res.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tVALUE")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%v\n", k, res.Fields[k])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print fields as JSON")
	return cmd
}
