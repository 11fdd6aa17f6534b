package main

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanosearch/internal/pkg/searchql"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse QUERY...",
		Short: "Print the syntax tree of a search query",
		Example: `  nanosearch parse '(apple OR banana) AND "red pear"'
  nanosearch parse --json 'apple | pear'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes := searchql.Parse(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				_, err := fmt.Fprintf(out, "%s\n", searchql.AppendJSON(nil, nodes))
				return err
			}
			_, err := fmt.Fprint(out, searchql.Format(nodes))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")
	return cmd
}
