package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/srv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(status)

	get.AddCommand(getTX)
	get.AddCommand(getEligibility)
	get.AddCommand(getClaim)
	rootCmd.AddCommand(get)

	claim.AddCommand(claimDonate)
	claim.AddCommand(claimSubmit)
	rootCmd.AddCommand(claim)

	mintSubmit.Flags().Uint64("points", 0, "Points the wallet paid with instead of tokens")
	mint.AddCommand(mintSubmit)
	rootCmd.AddCommand(mint)
}

// request sends a json rpc request to the configured daemon and prints the
// result. Any error exits.
func request(method string, params interface{}, res interface{}) {
	cl := srv.NewClient()
	cl.ScoutdServer = scoutdServer()
	err := cl.Request(method, params, res)
	if err != nil {
		fmt.Printf("Failed to make RPC request\nDetails:\n%v\n", err)
		os.Exit(1)
	}

	printJSON(res)
}

func scoutdServer() string {
	return viper.GetString(config.Scoutd)
}

func airdropWallet(args []string) srv.ParamsAirdropWallet {
	id, _ := ParseID(args[0])
	wallet := common.HexToAddress(args[1])
	return srv.ParamsAirdropWallet{ParamsAirdrop: srv.ParamsAirdrop{AirdropID: id}, Wallet: &wallet}
}

var status = &cobra.Command{
	Use:              "status",
	Short:            "Fetch the current settlement status of the scoutd node",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		var res srv.ResultGetSyncStatus
		request("get-sync-status", nil, &res)
	},
}

var get = &cobra.Command{
	Use:   "get <subcommand>",
	Short: "Able to read airdrop and settlement information from the daemon.",
}

var getTX = &cobra.Command{
	Use:              "tx <id>",
	Short:            "Fetch a pending transaction by the id returned on submit",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args:             cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var res json.RawMessage
		request("get-pending-transaction", srv.ParamsGetPendingTransaction{ID: args[0]}, &res)
	},
}

var getEligibility = &cobra.Command{
	Use:              "eligibility <airdrop-id> <wallet>",
	Short:            "Check if a wallet can claim from an airdrop, and fetch its proof",
	Example:          "scoutd get eligibility 1 0x1111111111111111111111111111111111111111",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args:             ArgsInOrder(ArgValidatorID, ArgValidatorAddress),
	Run: func(cmd *cobra.Command, args []string) {
		var res json.RawMessage
		request("get-airdrop-eligibility", airdropWallet(args), &res)
	},
}

var getClaim = &cobra.Command{
	Use:              "claim <airdrop-id> <wallet>",
	Short:            "Fetch the claim step of a wallet in an airdrop",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args:             ArgsInOrder(ArgValidatorID, ArgValidatorAddress),
	Run: func(cmd *cobra.Command, args []string) {
		var res json.RawMessage
		request("get-airdrop-claim-status", airdropWallet(args), &res)
	},
}

var claim = &cobra.Command{
	Use:   "claim <subcommand>",
	Short: "Walk a wallet through claiming an airdrop",
}

var claimDonate = &cobra.Command{
	Use:              "donate <airdrop-id> <wallet> <none|half|all>",
	Short:            "Select how much of the airdrop a wallet donates before claiming",
	Example:          "scoutd claim donate 1 0x1111111111111111111111111111111111111111 half",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args: ArgsInOrder(ArgValidatorID, ArgValidatorAddress, func(cmd *cobra.Command, arg string) error {
		_, err := ParseDonation(arg)
		return err
	}),
	Run: func(cmd *cobra.Command, args []string) {
		bps, _ := ParseDonation(args[2])
		params := srv.ParamsSelectAirdropDonation{ParamsAirdropWallet: airdropWallet(args), DonationBps: &bps}
		var res json.RawMessage
		request("select-airdrop-donation", params, &res)
	},
}

var claimSubmit = &cobra.Command{
	Use:              "submit <airdrop-id> <wallet> <txhash>",
	Short:            "Submit the claim transaction a wallet sent, for settlement",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args:             ArgsInOrder(ArgValidatorID, ArgValidatorAddress, ArgValidatorTxHash),
	Run: func(cmd *cobra.Command, args []string) {
		hash, _ := ParseTxHash(args[2])
		params := srv.ParamsSubmitAirdropClaim{ParamsAirdropWallet: airdropWallet(args), TxHash: &hash}
		var res srv.ResultSubmitTransaction
		request("submit-airdrop-claim", params, &res)
	},
}

var mint = &cobra.Command{
	Use:   "mint <subcommand>",
	Short: "Builder nft purchases",
}

var mintSubmit = &cobra.Command{
	Use:              "submit <wallet> <builder-token-id> <amount> <chain> <txhash>",
	Short:            "Submit a builder nft purchase for settlement",
	Example:          "scoutd mint submit 0x1111111111111111111111111111111111111111 7 2 base 0x<txhash>",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args: ArgsInOrder(ArgValidatorAddress, ArgValidatorUint, ArgValidatorUint, func(cmd *cobra.Command, arg string) error {
		_, err := config.ParseChain(arg)
		return err
	}, ArgValidatorTxHash),
	Run: func(cmd *cobra.Command, args []string) {
		wallet := common.HexToAddress(args[0])
		tokenID, _ := strconv.ParseUint(args[1], 10, 64)
		amount, _ := strconv.ParseUint(args[2], 10, 64)
		chain, _ := config.ParseChain(args[3])
		hash, _ := ParseTxHash(args[4])
		points, _ := cmd.Flags().GetUint64("points")

		params := srv.ParamsSubmitMintTransaction{
			Wallet:         &wallet,
			BuilderTokenID: tokenID,
			TokenAmount:    amount,
			Points:         points,
			ChainID:        chain.ID,
			TxHash:         &hash,
		}
		var res srv.ResultSubmitTransaction
		request("submit-mint-transaction", params, &res)
	},
}
