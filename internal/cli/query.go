package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fajrul/kontext/pkg/assembler"
)

var (
	queryMaxTokens   int
	querySources     []string
	queryConvID      string
	queryShowContent bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Assemble context for a query",
	Long:  `Run similarity search over the indexed workspace and print the context items that fit the token budget, highest relevance first.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 0, "token budget (default from config)")
	queryCmd.Flags().StringSliceVar(&querySources, "sources", []string{"workspace"}, "sources to draw from (active_file, open_files, workspace, conversation)")
	queryCmd.Flags().StringVar(&queryConvID, "conversation", "", "conversation id for history context")
	queryCmd.Flags().BoolVar(&queryShowContent, "content", false, "print item content, not just headers")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	eng, _, cleanup, err := buildEngine("")
	if err != nil {
		return err
	}
	defer cleanup()

	sources := make([]assembler.Source, 0, len(querySources))
	for _, s := range querySources {
		sources = append(sources, assembler.Source(s))
	}

	res := eng.AssembleContext(cmd.Context(), assembler.Request{
		Query:          strings.Join(args, " "),
		Sources:        sources,
		MaxTokens:      queryMaxTokens,
		ConversationID: queryConvID,
	})

	if len(res.Items) == 0 {
		fmt.Println("no context found")
		return nil
	}

	for _, item := range res.Items {
		fmt.Printf("[%.2f] %s %s", item.Relevance, item.Type, item.Name)
		if item.Path != "" {
			fmt.Printf(" (%s)", item.Path)
		}
		fmt.Println()
		if queryShowContent {
			fmt.Println(item.Content)
			fmt.Println("---")
		}
	}
	fmt.Printf("%d items, ~%d tokens", len(res.Items), res.TokenCount)
	if res.Truncated {
		fmt.Print(" (truncated)")
	}
	fmt.Println()
	return nil
}
