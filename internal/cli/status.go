package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fajrul/kontext/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and pipeline counters",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, cfg, cleanup, err := buildEngine("")
	if err != nil {
		return err
	}
	defer cleanup()

	s := eng.Status()
	fmt.Printf("Config: %s\n", config.NewLoader(cfgFile).GetConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Items: %d\n", s.Items)
	fmt.Printf("Entities: %d\n", s.Entities)
	fmt.Printf("Conversations: %d\n", s.Conversations)
	fmt.Printf("Vectors: %d\n", s.Vectors)
	fmt.Printf("Queue: %d\n", s.QueueLen)
	fmt.Printf("Embedding cache: %d entries\n", s.CacheEntries)
	return nil
}
