package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			st, err := s.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Entries:   %s\nDocuments: %s\nSummaries: %s\n",
				humanize.Comma(st.Entries), humanize.Comma(st.Documents), humanize.Comma(st.Summaries))
			return nil
		},
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent cached answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			entries, err := s.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Cache is empty.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOCUMENT\tQUERY\tRESPONSE\tCREATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.ID, e.DocumentID, truncate(e.Query, 40), truncate(e.Response, 40), humanize.Time(e.CreatedAt))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")

	summaryCmd := &cobra.Command{
		Use:   "summary [document-id]",
		Short: "Show the cached summary of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			e, ok, err := s.Summary(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("No cached summary for document %s.\n", args[0])
				return nil
			}
			fmt.Printf("Document: %s\nCached:   %s\n\n%s\n", e.DocumentID, humanize.Time(e.CreatedAt), e.Summary)
			return nil
		},
	}

	var documentID string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached answers and summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.Clear(context.Background(), documentID); err != nil {
				return err
			}
			if documentID != "" {
				fmt.Printf("Cache cleared for document %s.\n", documentID)
			} else {
				fmt.Println("All cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().StringVarP(&documentID, "document", "d", "", "only clear entries of this document")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, listCmd, summaryCmd, clearCmd)
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
