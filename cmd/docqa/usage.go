package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docqa/docqa/pkg/budget"
	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/tracker"
)

func newUsageCmd() *cobra.Command {
	var (
		configPath string
		operation  string
		since      time.Duration
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage of generation calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			if recent > 0 {
				records, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No generation calls recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "WHEN\tOPERATION\tPROVIDER\tMODEL\tPROMPT\tCOMPLETION\tLATENCY")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%dms\n",
						humanize.Time(r.CreatedAt), r.Operation, r.Provider, r.Model, r.PromptTokens, r.CompletionTokens, r.LatencyMs)
				}
				return w.Flush()
			}

			var from time.Time
			if since > 0 {
				from = time.Now().UTC().Add(-since)
			}
			summaries, err := tr.Summary(ctx, operation, from)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No generation calls recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tPROVIDER\tMODEL\tCALLS\tPROMPT\tCOMPLETION\tTOTAL\tAVG LATENCY")
			var total int64
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%.0fms\n",
					s.Operation, s.Provider, s.Model, s.RequestCount,
					humanize.Comma(int64(s.TotalPrompt)), humanize.Comma(int64(s.TotalCompletion)),
					humanize.Comma(int64(s.TotalTokens)), s.AvgLatencyMs)
				total += int64(s.TotalTokens)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\nTotal tokens: %s\n", humanize.Comma(total))

			if len(cfg.Budget.Policies) == 0 {
				return nil
			}
			statuses, err := budget.New(cfg.Budget.Policies, tr).Status(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BUDGET\tPERIOD\tLIMIT\tUSED\tREMAINING")
			for _, st := range statuses {
				op := st.Policy.Operation
				if op == "" {
					op = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", op, st.Policy.Period,
					humanize.Comma(st.Policy.MaxTokens), humanize.Comma(st.Used), humanize.Comma(st.Remaining))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation (ask, summarize, extract)")
	cmd.Flags().DurationVar(&since, "since", 0, "only include calls newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent calls instead of a summary")
	return cmd
}
