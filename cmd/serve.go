package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse reports and run history over HTTP",
	Long: `Serve exposes the reports directory under /reports/ and the run history
as JSON under /api/runs, /api/runs/{id} and /api/stats.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	var history server.History
	if db != nil {
		defer db.Close()
		history = db
	}

	reportsDir := cfg.Resolve(cfg.Paths.Reports)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s (Ctrl+C to stop)\n", reportsDir, serveAddr)

	err = server.New(reportsDir, history).ListenAndServe(cmd.Context(), serveAddr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
