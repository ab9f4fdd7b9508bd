package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/history"
)

var (
	historySearch string
	historyType   string
	historyTime   string
	historyPage    int
	historyRetries int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past interviews",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "Match position or interview type")
	historyCmd.Flags().StringVarP(&historyType, "type", "t", "", "Interview type key")
	historyCmd.Flags().StringVar(&historyTime, "time", "", "Time window: today, week, month or year")
	historyCmd.Flags().IntVarP(&historyPage, "page", "p", 1, "Page number")
	historyCmd.Flags().IntVar(&historyRetries, "retries", 0, "Repeat a failed fetch up to this many times")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	window, err := history.ParseWindow(historyTime)
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		b := history.NewBrowser(a.client, a.cfg.PageSize, a.log)
		err := b.Apply(ctx, history.Filter{Search: historySearch, Type: historyType, Window: window})
		for i := 0; err != nil && i < historyRetries; i++ {
			a.log.WithError(err).WithField("attempt", i+1).Warn("retrying history fetch")
			_, err = b.Retry(ctx)
		}
		if err != nil {
			return err
		}
		if historyPage != 1 && !b.Goto(historyPage) {
			return fmt.Errorf("page %d is out of range", historyPage)
		}

		out := cmd.OutOrStdout()
		p := b.Page()
		if p.Total == 0 {
			fmt.Fprintln(out, "no interviews found")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tTYPE\tPOSITION\tSCORE\tSTATUS")
		for _, r := range p.Records {
			score := "-"
			if r.Score != nil {
				score = strconv.FormatFloat(*r.Score, 'f', -1, 64)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Type, r.Position, score, r.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		pages := make([]string, 0, 5)
		for _, n := range b.Window() {
			if n == p.Number {
				pages = append(pages, fmt.Sprintf("[%d]", n))
			} else {
				pages = append(pages, strconv.Itoa(n))
			}
		}
		fmt.Fprintf(out, "\nshowing %d-%d of %d  pages: %s\n", p.First, p.Last, p.Total, strings.Join(pages, " "))
		return nil
	})
}
