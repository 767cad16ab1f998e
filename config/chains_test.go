package config_test

import (
	"testing"

	. "github.com/scoutgame/scoutd/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	c, err := ParseChain("8453")
	require.NoError(t, err)
	assert.Equal(t, Base, c)

	c, err = ParseChain(" Optimism ")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), c.ID)

	_, err = ParseChain("solana")
	assert.Error(t, err)

	assert.Equal(t, "chains.rpc.42161", ChainRPC(Arbitrum.ID))
}
