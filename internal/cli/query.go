package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kbase/internal/domain"
)

var (
	queryText    string
	queryTopK    int
	queryJSON    bool
	queryContext bool
	queryScored  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the knowledge corpus",
	Long: `Search for relevant chunks using hybrid BM25 + vector ranking.

Examples:
  kbase query -q "katere sobe imate"
  kbase query -q "marmelada" --top-k 3 --json
  kbase query -q "jahanje s ponijem" --context`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "print the assembled context block")
	queryCmd.Flags().BoolVar(&queryScored, "scored", false, "use the overlap-ratio scale with the confidence gate")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	topK := cfg.Search.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}
	ctx := context.Background()

	if queryScored {
		return printScored(ctx, rt, topK)
	}

	chunks := rt.engine.Search(ctx, queryText, topK)
	if queryContext {
		fmt.Println(rt.engine.BuildContext(queryText, chunks))
		return nil
	}
	if queryJSON {
		return printJSON(chunks)
	}
	if len(chunks) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, chunk := range chunks {
		printChunk(i+1, chunk, -1)
	}
	return nil
}

func printScored(ctx context.Context, rt *runtime, topK int) error {
	results := rt.engine.SearchScored(ctx, queryText, topK)
	if queryJSON {
		return printJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("no confident match")
		return nil
	}
	for i, result := range results {
		printChunk(i+1, result.Chunk, result.Score)
	}
	return nil
}

func printChunk(rank int, chunk domain.Chunk, score float64) {
	if score >= 0 {
		fmt.Printf("%d. [%.2f] %s\n", rank, score, chunk.Title)
	} else {
		fmt.Printf("%d. %s\n", rank, chunk.Title)
	}
	if chunk.URL != "" {
		fmt.Printf("   %s\n", chunk.URL)
	}
	fmt.Printf("   %s\n\n", chunk.Body)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
