package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyAfter  int64
	historyBefore int64
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history ROOM",
	Short: "Print the message history of a room",
	Long: `Print messages of a room, newest first. Bounds are inclusive
millisecond timestamps; --before defaults to now.

Examples:
  ravenctl history lobby
  ravenctl history lobby --after 1700000000000 --limit 200`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		room, err := b.rooms.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		msgs, err := b.history.Query(cmd.Context(), room.ID, historyAfter, historyBefore, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSENDER\tACTION\tMESSAGE")
		for _, m := range msgs {
			ts := time.UnixMilli(m.TimeSent).UTC().Format(time.RFC3339Nano)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, m.Sender, m.Action.WireAction(), m.Body)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int64Var(&historyAfter, "after", 0, "oldest timeSent to include")
	historyCmd.Flags().Int64Var(&historyBefore, "before", 0, "newest timeSent to include (default now)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum messages (default HISTORY_LIMIT)")
	rootCmd.AddCommand(historyCmd)
}
