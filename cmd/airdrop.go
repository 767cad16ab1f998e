package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node"
	"github.com/scoutgame/scoutd/srv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	airdropCreate.Flags().String("kind", string(merkle.EncodingThirdweb), "The contract the tree is built for, 'thirdweb' or 'sablier'")
	airdropCreate.Flags().String("chain", config.Base.Name, "The chain name or id the airdrop is claimed on")
	airdropCreate.Flags().String("token", "", "The erc20 token address that is airdropped")
	airdropCreate.Flags().String("season", "", "The season the airdrop rewards")
	airdropCreate.Flags().String("expires", "", "When the claim window closes, an RFC3339 time or a duration like 720h")
	airdropCreate.Flags().String("tree-url", "", "Where the tree document is hosted for claimers")
	airdropCreate.Flags().Bool("wei", false, "Amounts in the recipient file are base units instead of whole tokens")
	airdrop.AddCommand(airdropCreate)

	airdrop.AddCommand(airdropDeploy)
	airdrop.AddCommand(airdropAttach)

	airdropTree.Flags().String("out", "", "Write the tree document to a file instead of stdout")
	airdrop.AddCommand(airdropTree)

	airdrop.AddCommand(airdropList)
	airdrop.AddCommand(airdropShow)
	rootCmd.AddCommand(airdrop)
}

// localNode opens the ledger and chain clients of the config directly,
// without going through a running daemon.
func localNode(ctx context.Context) *node.Scoutd {
	n, err := node.NewScoutd(ctx, viper.GetViper())
	if err != nil {
		log.WithError(err).Fatal("failed to open scoutd")
	}
	return n
}

func closeNode(n *node.Scoutd) {
	if err := n.Close(); err != nil {
		log.WithError(err).Error("failed to close scoutd")
	}
}

func printJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
}

var airdrop = &cobra.Command{
	Use:   "airdrop <subcommand>",
	Short: "Create, deploy and inspect merkle airdrops",
}

var airdropCreate = &cobra.Command{
	Use:   "create <recipients-file>",
	Short: "Build the merkle tree of a recipient list and store the airdrop",
	Long: "Build the merkle tree of a recipient list and store the airdrop. The recipient " +
		"file is csv, json or yaml, with an address and an amount per recipient.",
	Example:          "scoutd airdrop create season1.csv --token 0x... --chain base --expires 720h",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kindArg, _ := cmd.Flags().GetString("kind")
		chainArg, _ := cmd.Flags().GetString("chain")
		tokenArg, _ := cmd.Flags().GetString("token")
		season, _ := cmd.Flags().GetString("season")
		expiresArg, _ := cmd.Flags().GetString("expires")
		treeURL, _ := cmd.Flags().GetString("tree-url")
		wei, _ := cmd.Flags().GetBool("wei")

		kind, err := merkle.ParseEncoding(kindArg)
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}
		chain, err := config.ParseChain(chainArg)
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}
		if !common.IsHexAddress(tokenArg) {
			cmd.PrintErrln("--token must be the erc20 address of the airdropped token")
			os.Exit(1)
		}
		expires, err := ParseExpiry(expiresArg, time.Now())
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}

		format, err := merkle.FormatFromPath(args[0])
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}
		f, err := os.Open(args[0])
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}
		recipients, err := merkle.ReadRecipients(f, format, wei)
		_ = f.Close()
		if err != nil {
			cmd.PrintErrln(err.Error())
			os.Exit(1)
		}

		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		a, err := n.CreateAirdrop(ctx, node.AirdropParams{
			Kind:       kind,
			ChainID:    chain.ID,
			Token:      common.HexToAddress(tokenArg),
			Recipients: recipients,
			Season:     season,
			ExpiresAt:  expires,
			TreeURL:    treeURL,
		})
		if err != nil {
			log.WithError(err).Error("failed to create airdrop")
			return
		}
		printJSON(a)
	},
}

var airdropDeploy = &cobra.Command{
	Use:              "deploy <airdrop-id>",
	Short:            "Deploy the claim contract of a thirdweb airdrop with the configured deployer key",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             ArgsInOrder(ArgValidatorID),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := ParseID(args[0])
		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		contract, err := n.DeployAirdropContract(ctx, id)
		if err != nil {
			log.WithError(err).WithField("id", id).Error("failed to deploy airdrop")
			return
		}
		fmt.Printf("airdrop %d deployed at %s\n", id, contract.Hex())
	},
}

var airdropAttach = &cobra.Command{
	Use:              "attach <airdrop-id> <contract>",
	Short:            "Attach a claim contract deployed elsewhere, its root must match the airdrop",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             ArgsInOrder(ArgValidatorID, ArgValidatorAddress),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := ParseID(args[0])
		contract := common.HexToAddress(args[1])
		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		if err := n.AttachAirdropContract(ctx, id, contract); err != nil {
			log.WithError(err).WithField("id", id).Error("failed to attach airdrop contract")
			return
		}
		fmt.Printf("airdrop %d attached to %s\n", id, contract.Hex())
	},
}

var airdropTree = &cobra.Command{
	Use:              "tree <airdrop-id>",
	Short:            "Print the tree document of an airdrop, ready to be hosted",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Args:             ArgsInOrder(ArgValidatorID),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := ParseID(args[0])
		ctx := context.Background()
		n := localNode(ctx)
		defer closeNode(n)

		doc, err := n.AirdropTree(ctx, id)
		if err != nil {
			log.WithError(err).WithField("id", id).Error("failed to load airdrop tree")
			return
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			printJSON(doc)
			return
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			panic(err)
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			log.WithError(err).WithField("path", out).Error("failed to write tree")
			return
		}
		log.WithField("path", out).Info("tree written")
	},
}

var airdropList = &cobra.Command{
	Use:              "list",
	Short:            "Fetch every airdrop known to the daemon",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		var res json.RawMessage
		request("get-airdrops", nil, &res)
	},
}

var airdropShow = &cobra.Command{
	Use:              "show <airdrop-id>",
	Short:            "Fetch a single airdrop from the daemon",
	PersistentPreRun: always,
	PreRun:           SoftReadConfig,
	Args:             ArgsInOrder(ArgValidatorID),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := ParseID(args[0])
		var res json.RawMessage
		request("get-airdrop", srv.ParamsAirdrop{AirdropID: id}, &res)
	},
}
