package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/core"
	"github.com/luxquant/omnitron/internal/secrets"
	"github.com/luxquant/omnitron/storage"
)

var userRoles []string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user with a password credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx := cmd.Context()

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		if len(password) == 0 {
			return fmt.Errorf("password must not be empty")
		}

		hash, err := secrets.HashPassword(string(password))
		if err != nil {
			return err
		}

		// Register any role names not seen before so they show up in
		// listings even before a target references them.
		existing, err := repo.ListRoles(ctx)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(existing))
		for _, role := range existing {
			known[role.Name] = true
		}
		for _, name := range userRoles {
			if known[name] {
				continue
			}
			if err := repo.PutRole(ctx, &storage.RoleRecord{ID: uuid.New(), Name: name}); err != nil {
				return err
			}
		}

		err = repo.PutUser(ctx, &storage.UserRecord{
			ID:       uuid.New(),
			Username: username,
			Credentials: []storage.CredentialRecord{
				{Kind: auth.KindPassword, PasswordHash: hash},
			},
			Roles: userRoles,
		})
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("user %q already exists", username)
		}
		if err != nil {
			return err
		}

		fmt.Printf("User %s created with roles %v.\n", username, userRoles)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		users, err := repo.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users.")
			return nil
		}
		for _, u := range users {
			kinds := make([]string, 0, len(u.Credentials))
			for _, c := range u.Credentials {
				kinds = append(kinds, string(c.Kind))
			}
			fmt.Printf("%s  credentials=%v roles=%v\n", u.Username, kinds, u.Roles)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	userAddCmd.Flags().StringSliceVar(&userRoles, "role", nil, "Role to grant (repeatable)")
}
