package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Create, list and delete rooms",
	Long: `Manage rooms.

Examples:
  ravenctl rooms create lobby --creator alice
  ravenctl rooms list
  ravenctl rooms delete lobby`,
}

var roomCreator string

var roomsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		room, err := b.rooms.Create(cmd.Context(), args[0], roomCreator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", room.Name, room.ID)
		return nil
	},
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		list, err := b.rooms.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tSTATUS\tCREATOR")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.ID, r.Status, r.CreatorID)
		}
		return w.Flush()
	},
}

var roomsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a room with its connections and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		gone, err := b.rooms.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !gone {
			fmt.Fprintf(cmd.OutOrStdout(), "%s marked deleting; the server sweeper will finish it\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	roomsCreateCmd.Flags().StringVar(&roomCreator, "creator", "ravenctl", "creator recorded on the room")
	roomsCmd.AddCommand(roomsCreateCmd, roomsListCmd, roomsDeleteCmd)
	rootCmd.AddCommand(roomsCmd)
}
