package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ashenafi-pixel/casino-settlement/ledger"
)

var (
	payStatus string
	payKind   string
	payUser   string
	payLimit  int
	payBy     string
	payNote   string
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Review deposits and withdrawals",
}

var paymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payments, pending ones by default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		ps, err := l.Payments(cmd.Context(), ledger.PaymentFilter{
			UserID: payUser,
			Status: payStatus,
			Kind:   payKind,
			Limit:  payLimit,
		})
		if err != nil {
			return err
		}
		w := table(cmd)
		fmt.Fprintln(w, "ID\tUSER\tKIND\tAMOUNT\tSTATUS")
		for _, p := range ps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.UserID, p.Kind, p.Amount, p.Status)
		}
		return w.Flush()
	},
}

var paymentsApproveCmd = &cobra.Command{
	Use:   "approve <payment-id>",
	Short: "Approve a pending payment and apply it to the balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		p, err := l.ApprovePayment(cmd.Context(), args[0], payBy)
		if err != nil {
			return err
		}
		return printJSON(cmd, p)
	},
}

var paymentsRejectCmd = &cobra.Command{
	Use:   "reject <payment-id>",
	Short: "Reject a pending payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		p, err := l.RejectPayment(cmd.Context(), args[0], payBy, payNote)
		if err != nil {
			return err
		}
		return printJSON(cmd, p)
	},
}

func init() {
	paymentsListCmd.Flags().StringVar(&payStatus, "status", ledger.PaymentPending, "filter by status; empty for all")
	paymentsListCmd.Flags().StringVar(&payKind, "kind", "", "deposit or withdrawal")
	paymentsListCmd.Flags().StringVar(&payUser, "user", "", "filter by user id")
	paymentsListCmd.Flags().IntVar(&payLimit, "limit", 50, "maximum rows")

	for _, c := range []*cobra.Command{paymentsApproveCmd, paymentsRejectCmd} {
		c.Flags().StringVar(&payBy, "by", "casinoctl", "recorded as the deciding admin")
	}
	paymentsRejectCmd.Flags().StringVar(&payNote, "note", "", "reason shown to the player")

	paymentsCmd.AddCommand(paymentsListCmd, paymentsApproveCmd, paymentsRejectCmd)
	rootCmd.AddCommand(paymentsCmd)
}
