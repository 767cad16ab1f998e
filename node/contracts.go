package node

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
)

// The contract fragments below only hold what the daemon calls.

// thirdwebAirdropABI is thirdweb's Airdrop, cloned by the factory. The root is
// set per token after initialization.
var thirdwebAirdropABI = mustParseABI(`[
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[
		{"name":"_defaultAdmin","type":"address"},
		{"name":"_contractURI","type":"string"}],"outputs":[]},
	{"type":"function","name":"setMerkleRoot","stateMutability":"nonpayable","inputs":[
		{"name":"_token","type":"address"},
		{"name":"_tokenMerkleRoot","type":"bytes32"},
		{"name":"_resetClaimStatus","type":"bool"}],"outputs":[]},
	{"type":"function","name":"setOwner","stateMutability":"nonpayable","inputs":[
		{"name":"_newOwner","type":"address"}],"outputs":[]},
	{"type":"function","name":"tokenMerkleRoot","stateMutability":"view","inputs":[
		{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"isClaimed","stateMutability":"view","inputs":[
		{"name":"receiver","type":"address"},
		{"name":"token","type":"address"},
		{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`)

// sablierAirdropABI is a Sablier merkle instant/lockup campaign.
var sablierAirdropABI = mustParseABI(`[
	{"type":"function","name":"MERKLE_ROOT","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"hasClaimed","stateMutability":"view","inputs":[
		{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`)

// cloneFactoryABI deploys minimal proxies of an implementation.
var cloneFactoryABI = mustParseABI(`[
	{"type":"function","name":"deployProxyByImplementation","stateMutability":"nonpayable","inputs":[
		{"name":"_implementation","type":"address"},
		{"name":"_data","type":"bytes"},
		{"name":"_salt","type":"bytes32"}],"outputs":[{"name":"deployedProxy","type":"address"}]},
	{"type":"event","name":"ProxyDeployed","anonymous":false,"inputs":[
		{"name":"implementation","type":"address","indexed":true},
		{"name":"proxy","type":"address","indexed":false},
		{"name":"deployer","type":"address","indexed":true}]}
]`)

var erc1155ABI = mustParseABI(`[
	{"type":"event","name":"TransferSingle","anonymous":false,"inputs":[
		{"name":"operator","type":"address","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"id","type":"uint256","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]}
]`)

// onChainRoot reads the merkle root the claim contract verifies against.
func onChainRoot(ctx context.Context, client ChainReader, a ledger.Airdrop) (common.Hash, error) {
	var out []interface{}
	var err error
	switch a.Kind {
	case merkle.EncodingThirdweb:
		out, err = callView(ctx, client, a.Contract, thirdwebAirdropABI, "tokenMerkleRoot", a.Token)
	case merkle.EncodingSablier:
		out, err = callView(ctx, client, a.Contract, sablierAirdropABI, "MERKLE_ROOT")
	default:
		return common.Hash{}, merkle.ErrUnknownEncoding
	}
	if err != nil {
		return common.Hash{}, err
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected merkle root type %T", out[0])
	}
	return common.Hash(root), nil
}

// onChainClaimed reads if a recipient already claimed from the contract.
func onChainClaimed(ctx context.Context, client ChainReader, a ledger.Airdrop, r merkle.Recipient) (bool, error) {
	var out []interface{}
	var err error
	switch a.Kind {
	case merkle.EncodingThirdweb:
		// erc20 claims use token id 0
		out, err = callView(ctx, client, a.Contract, thirdwebAirdropABI, "isClaimed", r.Address, a.Token, big.NewInt(0))
	case merkle.EncodingSablier:
		out, err = callView(ctx, client, a.Contract, sablierAirdropABI, "hasClaimed", new(big.Int).SetUint64(r.Index))
	default:
		return false, merkle.ErrUnknownEncoding
	}
	if err != nil {
		return false, err
	}
	claimed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected claimed type %T", out[0])
	}
	return claimed, nil
}

// Transfer is a decoded ERC1155 TransferSingle log.
type Transfer struct {
	Contract common.Address
	Operator common.Address
	From     common.Address
	To       common.Address
	ID       *big.Int
	Value    *big.Int
}

// transfersTo decodes the TransferSingle logs of contract that credit to.
func transfersTo(receipt *types.Receipt, contract, to common.Address) ([]Transfer, error) {
	event := erc1155ABI.Events["TransferSingle"]
	var transfers []Transfer
	for _, lg := range receipt.Logs {
		if lg.Address != contract || len(lg.Topics) != 4 || lg.Topics[0] != event.ID {
			continue
		}
		if common.BytesToAddress(lg.Topics[3].Bytes()) != to {
			continue
		}
		out, err := erc1155ABI.Unpack("TransferSingle", lg.Data)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, Transfer{
			Contract: lg.Address,
			Operator: common.BytesToAddress(lg.Topics[1].Bytes()),
			From:     common.BytesToAddress(lg.Topics[2].Bytes()),
			To:       to,
			ID:       out[0].(*big.Int),
			Value:    out[1].(*big.Int),
		})
	}
	return transfers, nil
}
