package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/VioletCranberry/coco-search/internal/searcher"
	"github.com/VioletCranberry/coco-search/internal/storage"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

var (
	flagSearchIndex string
	flagLimit       int
	flagMode        string
	flagFilterLangs []string
	flagFilterKinds []string
	flagPathGlob    string
	flagSymbolGlob  string
	flagExpand      bool
	flagShowText    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an index with hybrid vector and lexical retrieval",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		req := searcher.Request{
			IndexName:      flagSearchIndex,
			Query:          query,
			Limit:          flagLimit,
			Mode:           searcher.Mode(flagMode),
			RRFConstant:    p.cfg.Search.RRFConstant,
			WideningFactor: p.cfg.Search.WideningFactor,
			ExpandContext:  flagExpand,
			Timeout:        p.cfg.Search.Timeout,
		}
		if len(flagFilterLangs) > 0 || len(flagFilterKinds) > 0 ||
			flagPathGlob != "" || flagSymbolGlob != "" {
			req.Filters = &storage.SearchFilters{
				Languages:   flagFilterLangs,
				SymbolKinds: flagFilterKinds,
				PathGlob:    flagPathGlob,
				SymbolGlob:  flagSymbolGlob,
			}
		}

		resp, err := p.searcher.Search(cmd.Context(), req)
		if err != nil {
			return err
		}
		printResults(query, resp)
		return nil
	},
}

func printResults(query string, resp *searcher.Response) {
	if len(resp.Results) == 0 {
		fmt.Printf("No results for %q\n", query)
		return
	}
	fmt.Printf("%d results for %q (%s, %d vector hits, %d text hits)\n\n",
		resp.TotalResults, query, resp.Mode, resp.VectorHits, resp.TextHits)

	for i, r := range resp.Results {
		fmt.Printf("%2d. %s:%d-%d  score=%.4f\n",
			i+1, r.File, r.Span.StartLine, r.Span.EndLine, r.Score)
		if r.SymbolName != "" {
			name := r.SymbolName
			if r.HierarchyPath != "" {
				name = r.HierarchyPath
			}
			fmt.Printf("    %s %s (%s)\n", r.SymbolKind, name, r.Language)
		} else {
			fmt.Printf("    (%s)\n", r.Language)
		}
		if flagShowText {
			printSnippet(&r)
		}
	}
}

func printSnippet(r *types.SearchResult) {
	lines := strings.Split(strings.TrimRight(r.Text, "\n"), "\n")
	for _, line := range lines {
		fmt.Printf("    | %s\n", line)
	}
	if r.Expanded {
		fmt.Println("    (expanded to enclosing symbol)")
	}
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchIndex, "index", "default", "index name")
	searchCmd.Flags().IntVar(&flagLimit, "limit", searcher.DefaultLimit, "maximum results")
	searchCmd.Flags().StringVar(&flagMode, "mode", string(searcher.ModeHybrid), "retrieval mode (hybrid, vector, text)")
	searchCmd.Flags().StringSliceVar(&flagFilterLangs, "language", nil, "filter by language")
	searchCmd.Flags().StringSliceVar(&flagFilterKinds, "kind", nil, "filter by symbol kind (e.g. function,struct)")
	searchCmd.Flags().StringVar(&flagPathGlob, "path", "", "filter by path glob")
	searchCmd.Flags().StringVar(&flagSymbolGlob, "symbol", "", "filter by symbol name glob")
	searchCmd.Flags().BoolVar(&flagExpand, "expand", false, "expand hits to their enclosing symbols")
	searchCmd.Flags().BoolVar(&flagShowText, "text", false, "print chunk text with each hit")
	rootCmd.AddCommand(searchCmd)
}
