package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ashenafi-pixel/casino-settlement/auth"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

var (
	userBalance   string
	userRole      string
	userWithToken bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user with an opening balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		initial, err := money.Parse(userBalance)
		if err != nil {
			return fmt.Errorf("--balance: %w", err)
		}
		l, err := openLedger()
		if err != nil {
			return err
		}
		u, err := l.CreateUser(cmd.Context(), args[0], initial, userRole)
		if err != nil {
			return err
		}
		out := struct {
			User  *ledger.User `json:"user"`
			Token string       `json:"token,omitempty"`
		}{User: u}
		if userWithToken {
			if out.Token, err = issue(u); err != nil {
				return err
			}
		}
		return printJSON(cmd, out)
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users and balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		users, err := l.Users(cmd.Context())
		if err != nil {
			return err
		}
		w := table(cmd)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tBALANCE")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.Balance)
		}
		return w.Flush()
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Issue a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		u, err := l.UserByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		tok, err := issue(u)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func issue(u *ledger.User) (string, error) {
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}
	return auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL).Issue(u.ID, u.Role)
}

func init() {
	usersCreateCmd.Flags().StringVar(&userBalance, "balance", "0", "opening balance")
	usersCreateCmd.Flags().StringVar(&userRole, "role", ledger.RolePlayer, "player or admin")
	usersCreateCmd.Flags().BoolVar(&userWithToken, "token", false, "also print a bearer token")

	usersCmd.AddCommand(usersCreateCmd, usersListCmd)
	rootCmd.AddCommand(usersCmd, tokenCmd)
}
