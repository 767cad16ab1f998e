package node

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

var (
	nftContract = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token       = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice       = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob         = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol       = common.HexToAddress("0x3333333333333333333333333333333333333333")
	stranger    = common.HexToAddress("0x4444444444444444444444444444444444444444")

	testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
)

// fakeChain answers the contract calls and receipts the daemon asks for.
type fakeChain struct {
	mu         sync.Mutex
	roots      map[common.Address]common.Hash
	claimed    map[common.Address]bool
	claimedIdx map[uint64]bool
	receipts   map[common.Hash]*types.Receipt
	sent       []*types.Transaction
	onSend     func(tx *types.Transaction) *types.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		roots:      make(map[common.Address]common.Hash),
		claimed:    make(map[common.Address]bool),
		claimedIdx: make(map[uint64]bool),
		receipts:   make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range []abi.ABI{thirdwebAirdropABI, sablierAirdropABI} {
		m, err := a.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		args, err := m.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		switch m.Name {
		case "tokenMerkleRoot", "MERKLE_ROOT":
			return m.Outputs.Pack([32]byte(f.roots[*call.To]))
		case "isClaimed":
			return m.Outputs.Pack(f.claimed[args[0].(common.Address)])
		case "hasClaimed":
			return m.Outputs.Pack(f.claimedIdx[args[0].(*big.Int).Uint64()])
		}
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }
func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error)   { return big.NewInt(8453), nil }
func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}
func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}
func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 500000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.onSend != nil {
		f.receipts[tx.Hash()] = f.onSend(tx)
	}
	return nil
}

func (f *fakeChain) setReceipt(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

func transferReceipt(to common.Address, id, value uint64) *types.Receipt {
	return transferFromReceipt(common.Address{}, to, id, value)
}

// transferFromReceipt is a TransferSingle from a holder, the zero address
// for a mint.
func transferFromReceipt(from, to common.Address, id, value uint64) *types.Receipt {
	event := erc1155ABI.Events["TransferSingle"]
	data, err := event.Inputs.NonIndexed().Pack(new(big.Int).SetUint64(id), new(big.Int).SetUint64(value))
	if err != nil {
		panic(err)
	}
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Address: nftContract,
			Topics: []common.Hash{
				event.ID,
				common.BytesToHash(nftContract.Bytes()),
				common.BytesToHash(from.Bytes()),
				common.BytesToHash(to.Bytes()),
			},
			Data: data,
		}},
	}
}

// claimReceipt is a successful transaction that emitted a log from contract.
func claimReceipt(contract common.Address) *types.Receipt {
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{{Address: contract, Topics: []common.Hash{crypto.Keccak256Hash([]byte("TokensClaimed"))}}},
	}
}

func revertedReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusFailed}
}

func newTestDaemon(t *testing.T) (*Scoutd, *fakeChain) {
	pollInterval = time.Millisecond

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	l := new(ledger.Ledger)
	l.DB = db
	require.NoError(t, l.CreateTables())

	conf := viper.New()
	conf.Set(config.NFTContract, nftContract.Hex())
	conf.Set(config.SettlementTimeout, 2*time.Second)
	conf.Set(config.AirdropTreeTimeout, 2*time.Second)
	conf.Set(config.SettlementMaxAttempts, 3)

	chain := newFakeChain()
	chains := NewChains()
	chains.Set(config.Base.ID, chain)

	d := New(conf, l, chains)
	d.now = func() time.Time { return testNow }
	return d, chain
}

func testRecipients() []merkle.Recipient {
	return []merkle.Recipient{
		{Index: 0, Address: alice, Amount: big.NewInt(1000)},
		{Index: 1, Address: bob, Amount: big.NewInt(2001)},
		{Index: 2, Address: carol, Amount: big.NewInt(3000)},
	}
}
