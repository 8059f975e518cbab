package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"histlens/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HistLens HTTP API server. The server exposes the analysis
endpoints, a long-poll event feed per request, cache statistics and
aggregated metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	if serveAddr != "" {
		eng.cfg.Server.Addr = serveAddr
	}

	server := api.NewServer(api.Options{
		Config: eng.cfg,
		Orch:   eng.orch,
		Events: eng.router,
		Cache:  eng.cache,
		DB:     eng.db,
		Tokens: eng.tokens,
		Logger: eng.logger,
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("HistLens API server listening on http://%s\n", eng.cfg.Server.Addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-shutdown:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
