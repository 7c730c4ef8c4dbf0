package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fajrul/kontext/internal/observability"
)

var (
	watchWorkspace   string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and index changes continuously",
	Long: `Run the background pipeline: sweep the workspace for unindexed files,
then keep watching for creates, writes, and deletes until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchWorkspace, "workspace", "w", "", "workspace to watch (overrides config)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9107)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	eng, cfg, cleanup, err := buildEngine(watchWorkspace)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.WatchWorkspace(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	eng.ReindexWorkspace()

	if watchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(watchMetricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		fmt.Printf("metrics on %s/metrics\n", watchMetricsAddr)
	}

	fmt.Printf("watching %s (ctrl-c to stop)\n", cfg.WorkspacePath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("stopping")
	return nil
}
