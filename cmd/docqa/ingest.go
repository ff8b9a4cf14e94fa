package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		configPath string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "ingest [text file]",
		Short: "Store the extracted text of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			ctx := context.Background()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			doc, created, err := a.docs.Ingest(ctx, name, string(data))
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Ingested %s as %s\n", doc.Filename, doc.ID)
			} else {
				fmt.Printf("%s already stored as %s\n", doc.Filename, doc.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVarP(&name, "filename", "n", "", "filename to store the document under (default: base name of the file)")
	return cmd
}

func newDocumentsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			docs, err := a.docs.List(ctx)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents stored.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Filename)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
