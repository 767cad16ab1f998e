package node

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWeeklyPayouts(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDaemon(t)
	week := "2025-W23"

	builderA := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	builderB := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	builderC := common.HexToAddress("0x00000000000000000000000000000000000000a3")
	require.NoError(t, d.RecordBuilderGems(ctx, week, 1, builderA, 50))
	require.NoError(t, d.RecordBuilderGems(ctx, week, 2, builderB, 10))
	require.NoError(t, d.RecordBuilderGems(ctx, week, 3, builderC, 0))

	require.NoError(t, d.Ledger.AddHolding(nil, alice, 1, 4))
	require.NoError(t, d.Ledger.AddHolding(nil, bob, 1, 1))

	allocation := big.NewInt(1_000_000)
	allocations, err := d.ComputeWeeklyPayouts(ctx, week, allocation)
	require.NoError(t, err)
	require.Len(t, allocations, 2, "builders without gems are not ranked")
	assert.Equal(t, uint64(1), allocations[0].BuilderTokenID)
	assert.Equal(t, 1, allocations[0].Rank)
	assert.True(t, allocations[0].Tokens.Cmp(allocations[1].Tokens) > 0)

	payouts, err := d.Payouts(ctx, week, nil)
	require.NoError(t, err)
	total := new(big.Int)
	perBuilder := make(map[uint64]*big.Int)
	for _, p := range payouts {
		total.Add(total, p.Amount)
		if perBuilder[p.BuilderTokenID] == nil {
			perBuilder[p.BuilderTokenID] = new(big.Int)
		}
		perBuilder[p.BuilderTokenID].Add(perBuilder[p.BuilderTokenID], p.Amount)
	}
	assert.Equal(t, 0, total.Cmp(allocation), "every token is paid out")
	assert.Equal(t, 0, perBuilder[1].Cmp(allocations[0].Tokens))
	assert.Nil(t, perBuilder[3])

	// builder 2 has no holders and keeps everything
	mine, err := d.Payouts(ctx, week, &builderB)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 0, mine[0].Amount.Cmp(allocations[1].Tokens))

	// alice holds four of the five nfts of builder 1
	aliceOut, err := d.Payouts(ctx, week, &alice)
	require.NoError(t, err)
	require.Len(t, aliceOut, 1)
	pool := new(big.Int).Sub(allocations[0].Tokens, new(big.Int).Div(new(big.Int).Mul(allocations[0].Tokens, big.NewInt(2000)), big.NewInt(10000)))
	expected := new(big.Int).Div(new(big.Int).Mul(pool, big.NewInt(4)), big.NewInt(5))
	assert.Equal(t, 0, aliceOut[0].Amount.Cmp(expected), "%s != %s", aliceOut[0].Amount, expected)

	c, err := d.Ledger.SelectBuilderWeek(nil, week, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rank)
	assert.Equal(t, int64(0), c.Tokens.Int64())

	t.Run("recompute replaces", func(t *testing.T) {
		d.Config.Set(config.TopBuilders, 1)
		allocations, err := d.ComputeWeeklyPayouts(ctx, week, allocation)
		require.NoError(t, err)
		require.Len(t, allocations, 1)
		assert.Equal(t, 0, allocations[0].Tokens.Cmp(allocation))

		mine, err := d.Payouts(ctx, week, &builderB)
		require.NoError(t, err)
		assert.Empty(t, mine)
	})
}
