package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "lca",
		Short:         "Parametric LCA models: impact expressions, Sobol sensitivity and model reduction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newSimplifyCmd(opts),
		newOATCmd(opts),
		newEvalCmd(opts),
		newRenderCmd(opts),
		newRunsCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
