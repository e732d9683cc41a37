package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmougeot/alarm-server/internal/cliutil"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Inspect groups",
}

var groupListCmd = &cobra.Command{
	Use:   "list [username]",
	Short: "List groups a user is a member of",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupList,
}

func init() {
	groupCmd.AddCommand(groupListCmd)
}

func runGroupList(cmd *cobra.Command, args []string) error {
	user, err := st.FindUserByUsername(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("find user %q: %w", args[0], err)
	}

	groups, err := st.ListGroups(cmd.Context(), user.ID)
	if err != nil {
		return err
	}

	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{g.ID.String(), g.Name, g.CreatedAt.Format("2006-01-02 15:04:05")}
	}
	cliutil.PrintTable(cmd.OutOrStdout(), []string{"ID", "Name", "Created At"}, rows)
	return nil
}
