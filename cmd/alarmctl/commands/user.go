package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/cliutil"
	"github.com/jmougeot/alarm-server/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Create a user account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUserCreate,
}

func init() {
	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := ""
	if len(args) == 1 {
		username = args[0]
	} else {
		input, err := cliutil.InputRequired("Username")
		if err != nil {
			return err
		}
		username = input
	}
	if err := auth.ValidateUsername(username); err != nil {
		return err
	}

	password, err := cliutil.PasswordWithConfirmation(8)
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password, cfg.Argon2Memory, cfg.Argon2Iterations,
		cfg.Argon2Parallelism, cfg.Argon2SaltLength, cfg.Argon2KeyLength)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := st.CreateUser(cmd.Context(), username, hash)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return fmt.Errorf("username %q is already taken", username)
		}
		return err
	}

	cliutil.PrintTable(cmd.OutOrStdout(), []string{"ID", "Username", "Created At"}, [][]string{
		{user.ID.String(), user.Username, user.CreatedAt.Format("2006-01-02 15:04:05")},
	})
	return nil
}
