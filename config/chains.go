package config

import (
	"fmt"
	"strconv"
	"strings"
)

type Chain struct {
	ID         uint64
	Name       string
	DefaultRPC string
}

var (
	Ethereum    = Chain{ID: 1, Name: "ethereum", DefaultRPC: "https://ethereum-rpc.publicnode.com"}
	Optimism    = Chain{ID: 10, Name: "optimism", DefaultRPC: "https://mainnet.optimism.io"}
	Base        = Chain{ID: 8453, Name: "base", DefaultRPC: "https://mainnet.base.org"}
	Arbitrum    = Chain{ID: 42161, Name: "arbitrum", DefaultRPC: "https://arb1.arbitrum.io/rpc"}
	BaseSepolia = Chain{ID: 84532, Name: "base-sepolia", DefaultRPC: "https://sepolia.base.org"}

	// Chains are the chains a scout can pay from. Builder NFTs and airdrops
	// live on one of them.
	Chains = []Chain{Ethereum, Optimism, Base, Arbitrum, BaseSepolia}
)

// ParseChain accepts a chain id or a chain name.
func ParseChain(s string) (Chain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	id, err := strconv.ParseUint(s, 10, 64)
	for _, c := range Chains {
		if (err == nil && c.ID == id) || c.Name == s {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("unsupported chain %q", s)
}

func ChainByID(id uint64) (Chain, bool) {
	for _, c := range Chains {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}
