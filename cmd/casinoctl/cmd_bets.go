package main

import (
	"github.com/spf13/cobra"

	"github.com/Ashenafi-pixel/casino-settlement/round"
	"github.com/Ashenafi-pixel/casino-settlement/settlement"
)

var betsCmd = &cobra.Command{
	Use:   "bets",
	Short: "Operate on individual bets",
}

var betsVoidCmd = &cobra.Command{
	Use:   "void <bet-id>",
	Short: "Refund an open bet and discard its round",
	Long: `Voids a bet that is still open, for example a round left behind by a
client that never came back. Settled bets are refused. Stop play for the
user first when a server is running: the lock taken here is local.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		svc := settlement.New(settlement.Options{
			Ledger: l,
			Rounds: round.NewStore(db),
			Log:    logger,
		})
		bet, err := svc.Void(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, bet)
	},
}

func init() {
	betsCmd.AddCommand(betsVoidCmd)
	rootCmd.AddCommand(betsCmd)
}
