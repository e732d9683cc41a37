// Package cliutil provides the interactive prompt and table-rendering helpers
// shared by the alarmctl admin commands.
package cliutil

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the operator cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err indicates the operator cancelled a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// InputRequired prompts for non-empty text input.
func InputRequired(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if input == "" {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		},
	}
	result, err := prompt.Run()
	return result, wrapError(err)
}

// PasswordWithConfirmation prompts for a password twice and fails if they
// don't match, mirroring the registration endpoint's minimum length.
func PasswordWithConfirmation(minLength int) (string, error) {
	first := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	password, err := first.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm := promptui.Prompt{Label: "Confirm password", Mask: '*'}
	confirmed, err := confirm.Run()
	if err != nil {
		return "", wrapError(err)
	}
	if password != confirmed {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// Confirm prompts for a yes/no answer, defaulting to no.
func Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, wrapError(err)
	}
	return true, nil
}
