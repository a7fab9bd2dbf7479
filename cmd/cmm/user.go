package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"cmm/internal/manager"
	"cmm/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	userEmail    string
	userRole     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account directly in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(userEmail) == "" {
			return errors.New("--email is required")
		}
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		pwd, err := resolvePassword(userPassword)
		if err != nil {
			return fmt.Errorf("password error: %w", err)
		}

		app, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		u, err := app.manager.RegisterUser(cmd.Context(), manager.RegisterUserInput{
			Email:    userEmail,
			Password: pwd,
			Role:     userRole,
		})
		if err != nil {
			if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrValidation) {
				return errors.New(models.Message(err))
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s with %s role.\n", u.Email, u.Role)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleAdmin), "admin, tech or viewer")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "password (leave blank to type securely)")
	userCmd.AddCommand(userAddCmd)
}

func resolvePassword(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed != "" {
		if len(trimmed) < 8 {
			return "", fmt.Errorf("password must be at least 8 characters")
		}
		return trimmed, nil
	}

	first, err := promptPassword("Enter new password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return first, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
