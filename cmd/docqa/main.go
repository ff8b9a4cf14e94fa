package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultConfigPath = "docqa.yaml"

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "docqa",
		Short:         "docqa answers questions about documents with a similarity-matched response cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newSummarizeCmd(),
		newExtractCmd(),
		newIngestCmd(),
		newDocumentsCmd(),
		newCacheCmd(),
		newUsageCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
