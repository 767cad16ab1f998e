package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/scoutgame/scoutd/rewards"
	"github.com/scoutgame/scoutd/srv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	payouts.AddCommand(payoutsGems)

	payoutsCompute.Flags().Bool("wei", false, "The allocation is in base units instead of whole tokens")
	payouts.AddCommand(payoutsCompute)

	payouts.AddCommand(payoutsGet)
	rootCmd.AddCommand(payouts)
}

var payouts = &cobra.Command{
	Use:   "payouts <subcommand>",
	Short: "Weekly builder rankings and token payouts",
	Long: "Weekly builder rankings and token payouts. A week is written like 2025-W23, " +
		"or 'current' for the iso week of today.",
}

var payoutsGems = &cobra.Command{
	Use:              "gems <week> <builder-token-id> <builder-wallet> <gems>",
	Short:            "Record the gems a builder earned in a week",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             ArgsInOrder(ArgValidatorWeek, ArgValidatorUint, ArgValidatorAddress, ArgValidatorUint),
	Run: func(cmd *cobra.Command, args []string) {
		week := ParseWeek(args[0], time.Now())
		tokenID, _ := strconv.ParseUint(args[1], 10, 64)
		gems, _ := strconv.ParseUint(args[3], 10, 64)

		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		if err := n.RecordBuilderGems(ctx, week, tokenID, common.HexToAddress(args[2]), gems); err != nil {
			log.WithError(err).Error("failed to record gems")
			return
		}
		fmt.Printf("builder %d has %d gems in %s\n", tokenID, gems, week)
	},
}

var payoutsCompute = &cobra.Command{
	Use:              "compute <week> <allocation>",
	Short:            "Rank the builders of a week and split the allocation between them and their holders",
	Example:          "scoutd payouts compute 2025-W23 250000",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             ArgsInOrder(ArgValidatorWeek, ArgValidatorAmount),
	Run: func(cmd *cobra.Command, args []string) {
		week := ParseWeek(args[0], time.Now())
		wei, _ := cmd.Flags().GetBool("wei")
		allocation, err := ParseAmount(args[1], wei)
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}

		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		allocations, err := n.ComputeWeeklyPayouts(ctx, week, allocation)
		if err != nil {
			log.WithError(err).WithField("week", week).Error("failed to compute payouts")
			return
		}
		for _, a := range allocations {
			fmt.Printf("%4d %10d %12d gems %s\n", a.Rank, a.BuilderTokenID, a.Gems,
				rewards.FormatTokenAmount(a.Tokens, rewards.TokenDecimals))
		}
	},
}

var payoutsGet = &cobra.Command{
	Use:              "get <week> [wallet]",
	Short:            "Fetch the payouts of a week, optionally for a single wallet",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args: cobra.MatchAll(cobra.RangeArgs(1, 2), func(cmd *cobra.Command, args []string) error {
		if err := ArgValidatorWeek(cmd, args[0]); err != nil {
			return err
		}
		if len(args) == 2 {
			return ArgValidatorAddress(cmd, args[1])
		}
		return nil
	}),
	Run: func(cmd *cobra.Command, args []string) {
		params := srv.ParamsGetPayouts{Week: ParseWeek(args[0], time.Now())}
		if len(args) == 2 {
			wallet := common.HexToAddress(args[1])
			params.Wallet = &wallet
		}

		cl := srv.NewClient()
		cl.ScoutdServer = scoutdServer()
		var res []ledger.Payout
		if err := cl.Request("get-payouts", params, &res); err != nil {
			fmt.Printf("Failed to make RPC request\nDetails:\n%v\n", err)
			os.Exit(1)
		}

		// Change the units to be human readable
		human := make([]map[string]interface{}, len(res))
		for i, p := range res {
			human[i] = map[string]interface{}{
				"week":           p.Week,
				"buildertokenid": p.BuilderTokenID,
				"wallet":         p.Wallet.Hex(),
				"amount":         rewards.FormatTokenAmount(p.Amount, rewards.TokenDecimals),
			}
		}
		printJSON(human)
	},
}
