package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var start int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the archive server",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Archives().Search(cmd.Context(), strings.Join(args, " "), start)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPAGES\tTITLE")
			for _, a := range result.Data {
				fmt.Fprintf(w, "%s\t%d\t%s\n", a.ArcID, a.PageCount, a.Title)
			}
			w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d results\n", len(result.Data), result.RecordsFiltered)
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "result offset")
	return cmd
}
