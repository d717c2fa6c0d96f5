package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csheth/shiyuan/internal/poems"
	"github.com/csheth/shiyuan/internal/search"
)

type poemSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Dynasty string `json:"dynasty"`
}

func summarize(list []poems.Poem) []poemSummary {
	out := make([]poemSummary, 0, len(list))
	for _, poem := range list {
		out = append(out, poemSummary{ID: poem.ID, Title: poem.Title, Author: poem.Author, Dynasty: poem.Dynasty})
	}
	return out
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		all    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search poems by title, author or text",
		Long: `Search prints up to three suggestions, or every match with --all.
Matching is a case-sensitive substring test against title, author and content.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			catalog := sess.loadCatalog(ctx)
			query := strings.Join(args, " ")
			var matched []poems.Poem
			if all {
				matched = search.Filter(catalog, query)
			} else {
				matched = search.Suggest(catalog, query)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(summarize(matched))
			}
			if all {
				fmt.Fprintf(out, "搜索结果：%s (%d)\n", query, len(matched))
			}
			for _, poem := range matched {
				fmt.Fprintf(out, "%s  %s  %s\n", poem.ID, poem.Title, poem.Byline())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every match with a count line")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
