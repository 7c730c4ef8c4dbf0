package cli

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"
)

var indexWorkspace string

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index files into the context store",
	Long: `Index the given paths, or the whole configured workspace when no paths
are given. Files already indexed are refreshed in place.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexWorkspace, "workspace", "w", "", "workspace to index (overrides config)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	eng, cfg, cleanup, err := buildEngine(indexWorkspace)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	if len(args) > 0 {
		for _, path := range args {
			if err := eng.ForceIndexFile(ctx, path); err != nil {
				fmt.Printf("skip %s: %v\n", path, err)
				continue
			}
			fmt.Printf("indexed %s\n", path)
		}
		return nil
	}

	indexed := 0
	err = filepath.WalkDir(cfg.WorkspacePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			for _, dir := range cfg.Indexing.ExcludedDirs {
				if d.Name() == dir {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if err := eng.ForceIndexFile(ctx, path); err == nil {
			indexed++
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("indexing aborted: %w", err)
	}

	status := eng.Status()
	fmt.Printf("indexed %d files (%d items, %d entities, %d vectors)\n",
		indexed, status.Items, status.Entities, status.Vectors)
	return nil
}
