package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmougeot/alarm-server/internal/cliutil"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Inspect pages",
}

var pageListCmd = &cobra.Command{
	Use:   "list [username]",
	Short: "List pages visible to a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageList,
}

func init() {
	pageCmd.AddCommand(pageListCmd)
}

func runPageList(cmd *cobra.Command, args []string) error {
	user, err := st.FindUserByUsername(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("find user %q: %w", args[0], err)
	}

	pages, err := st.ListPagesVisibleTo(cmd.Context(), user.ID)
	if err != nil {
		return err
	}

	rows := make([][]string, len(pages))
	for i, vp := range pages {
		rows[i] = []string{
			vp.Page.ID.String(),
			vp.Page.Name,
			strconv.FormatBool(vp.IsOwner),
			strconv.FormatBool(vp.CanEdit),
		}
	}
	cliutil.PrintTable(cmd.OutOrStdout(), []string{"ID", "Name", "Owner", "Can Edit"}, rows)
	return nil
}
