package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/scoutgame/scoutd/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var ErrUnknownChain = errors.New("no rpc client for chain")

// ChainReader is the read side of an evm rpc client. *ethclient.Client
// implements it.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainWriter can also sign and send transactions.
type ChainWriter interface {
	ChainReader
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Chains holds an rpc client per chain id.
type Chains struct {
	mu      sync.RWMutex
	clients map[uint64]ChainWriter
	closers []func()
}

func NewChains() *Chains {
	return &Chains{clients: make(map[uint64]ChainWriter)}
}

// DialChains connects to every supported chain. The rpc url of a chain is
// read from chains.rpc.<id>, falling back to the chain's public endpoint.
func DialChains(ctx context.Context, conf *viper.Viper) (*Chains, error) {
	c := NewChains()
	for _, chain := range config.Chains {
		url := conf.GetString(config.ChainRPC(chain.ID))
		if url == "" {
			url = chain.DefaultRPC
		}
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("dial %s: %w", chain.Name, err)
		}
		log.WithFields(log.Fields{"chain": chain.Name, "id": chain.ID}).Debug("chain client ready")
		c.Set(chain.ID, client)
		c.closers = append(c.closers, client.Close)
	}
	return c, nil
}

func (c *Chains) Set(chainID uint64, client ChainWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[chainID] = client
}

func (c *Chains) Get(chainID uint64) (ChainWriter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownChain, chainID)
	}
	return client, nil
}

func (c *Chains) Close() {
	for _, closer := range c.closers {
		closer()
	}
}

// callView runs a read only contract call and unpacks the outputs.
func callView(ctx context.Context, client ChainReader, contract common.Address, a abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}
	return a.Unpack(method, out)
}

func mustParseABI(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return a
}
