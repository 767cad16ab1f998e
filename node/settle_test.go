package node

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/scoutgame/scoutd/rewards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestClaimFlow(t *testing.T) {
	ctx := context.Background()
	d, chain := newTestDaemon(t)

	a := createAirdrop(t, d, merkle.EncodingThirdweb, nil)
	contract := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	chain.roots[contract] = a.Root
	require.NoError(t, d.AttachAirdropContract(ctx, a.ID, contract))

	s, err := d.ClaimStatus(ctx, a.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, StepNotQualified, s.Step)
	_, err = d.SelectDonation(ctx, a.ID, stranger, DonateNone)
	assert.ErrorIs(t, err, ErrInvalidClaimStep)

	s, err = d.ClaimStatus(ctx, a.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, StepClaimable, s.Step)
	assert.Nil(t, s.Claim)

	_, err = d.SelectDonation(ctx, a.ID, bob, 2500)
	assert.Error(t, err, "only the offered options are accepted")

	// submitting needs a donation choice first
	_, err = d.SubmitClaimTransaction(ctx, a.ID, bob, common.HexToHash("0xc0"))
	assert.ErrorIs(t, err, ErrInvalidClaimStep)

	s, err = d.SelectDonation(ctx, a.ID, bob, DonateAll)
	require.NoError(t, err)
	assert.Equal(t, StepDonationSelected, s.Step)
	require.NotNil(t, s.Claim)
	assert.Equal(t, int64(0), s.Claim.ClaimAmount.Int64())

	// the choice can be changed until the claim is sent
	s, err = d.SelectDonation(ctx, a.ID, bob, DonateHalf)
	require.NoError(t, err)
	assert.Equal(t, StepDonationSelected, s.Step)
	assert.Equal(t, int64(1001), s.Claim.ClaimAmount.Int64())
	assert.Equal(t, int64(1000), s.Claim.DonationAmount.Int64())
	assert.Equal(t, DonateHalf, s.Claim.DonationBps)

	reverted := common.HexToHash("0xc1")
	id, err := d.SubmitClaimTransaction(ctx, a.ID, bob, reverted)
	require.NoError(t, err)

	s, err = d.ClaimStatus(ctx, a.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, StepSubmitted, s.Step)
	_, err = d.SelectDonation(ctx, a.ID, bob, DonateNone)
	assert.ErrorIs(t, err, ErrInvalidClaimStep)

	chain.setReceipt(reverted, revertedReceipt())
	status, err := d.HandlePendingTransaction(ctx, id)
	assert.ErrorIs(t, err, ledger.RevertedErr)
	assert.Equal(t, ledger.PendingStatusFailed, status)

	p, err := d.PendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.RevertedErrInt, p.RejectCode)

	// a reverted claim can be tried again
	s, err = d.ClaimStatus(ctx, a.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, StepClaimable, s.Step)
	require.NotNil(t, s.Claim)
	assert.Equal(t, ledger.ClaimFailed, s.Claim.Status)

	_, err = d.SelectDonation(ctx, a.ID, bob, DonateNone)
	require.NoError(t, err)
	_, err = d.SubmitClaimTransaction(ctx, a.ID, bob, reverted)
	assert.ErrorIs(t, err, ErrAlreadySubmitted, "a transaction hash is only queued once")

	landed := common.HexToHash("0xc2")
	id, err = d.SubmitClaimTransaction(ctx, a.ID, bob, landed)
	require.NoError(t, err)

	chain.setReceipt(landed, claimReceipt(contract))
	// the chain reports the claim before the daemon settles it
	chain.claimed[bob] = true
	s, err = d.ClaimStatus(ctx, a.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, StepSubmitted, s.Step)

	status, err = d.HandlePendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatusCompleted, status)

	s, err = d.ClaimStatus(ctx, a.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, int64(2001), s.Claim.ClaimAmount.Int64())
	assert.Equal(t, landed, s.Claim.TxHash)

	// claimed from another interface
	chain.claimed[carol] = true
	s, err = d.ClaimStatus(ctx, a.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, StepAlreadyClaimed, s.Step)
}

func TestClaimNotOnChain(t *testing.T) {
	ctx := context.Background()
	d, chain := newTestDaemon(t)

	a := createAirdrop(t, d, merkle.EncodingThirdweb, nil)
	contract := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	chain.roots[contract] = a.Root
	require.NoError(t, d.AttachAirdropContract(ctx, a.ID, contract))

	tests := []struct {
		Name    string
		Hash    common.Hash
		Receipt *types.Receipt
	}{
		// anyone can submit a hash for a wallet
		{Name: "unrelated transaction", Hash: common.HexToHash("0xdead"), Receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}},
		{Name: "contract not claimed", Hash: common.HexToHash("0xbeef"), Receipt: claimReceipt(contract)},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			_, err := d.SelectDonation(ctx, a.ID, bob, DonateNone)
			require.NoError(t, err)
			id, err := d.SubmitClaimTransaction(ctx, a.ID, bob, test.Hash)
			require.NoError(t, err)

			chain.setReceipt(test.Hash, test.Receipt)
			status, err := d.HandlePendingTransaction(ctx, id)
			assert.ErrorIs(t, err, ledger.ClaimNotOnChainErr)
			assert.Equal(t, ledger.PendingStatusFailed, status)

			p, err := d.PendingTransaction(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.ClaimNotOnChainErrInt, p.RejectCode)

			s, err := d.ClaimStatus(ctx, a.ID, bob)
			require.NoError(t, err)
			assert.Equal(t, StepClaimable, s.Step, "the wallet can still claim")

			e, err := d.CheckAirdropEligibility(ctx, a.ID, bob)
			require.NoError(t, err)
			assert.Equal(t, EligibilityClaimable, e.Status)
		})
	}

	t.Run("no contract", func(t *testing.T) {
		undeployed := createAirdrop(t, d, merkle.EncodingThirdweb, nil)
		_, err := d.SelectDonation(ctx, undeployed.ID, alice, DonateNone)
		require.NoError(t, err)
		hash := common.HexToHash("0xfeed")
		id, err := d.SubmitClaimTransaction(ctx, undeployed.ID, alice, hash)
		require.NoError(t, err)

		chain.setReceipt(hash, claimReceipt(contract))
		_, err = d.HandlePendingTransaction(ctx, id)
		assert.ErrorIs(t, err, ledger.ClaimNotOnChainErr)
	})
}

func TestSameChainMint(t *testing.T) {
	ctx := context.Background()
	d, chain := newTestDaemon(t)
	week := rewards.WeekOf(testNow)
	builder := common.HexToAddress("0x00000000000000000000000000000000000000b7")

	require.NoError(t, d.RecordBuilderGems(ctx, week, 7, builder, 40))
	_, err := d.ComputeWeeklyPayouts(ctx, week, big.NewInt(1000))
	require.NoError(t, err)

	hash := common.HexToHash("0xa1")
	params := MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 2, Points: 40, SourceChainID: config.Base.ID, SourceTxHash: hash}
	id, err := d.SubmitMintTransaction(ctx, params)
	require.NoError(t, err)

	again, err := d.SubmitMintTransaction(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, id, again, "duplicate submissions share an id")

	p, err := d.PendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.CrossChain())
	assert.Equal(t, hash, p.DestTxHash)
	assert.Equal(t, ledger.PendingStatusPending, p.Status)

	chain.setReceipt(hash, transferReceipt(alice, 7, 2))
	status, err := d.HandlePendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatusCompleted, status)

	status, err = d.HandlePendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatus(""), status, "settled rows are not handled again")

	bal, err := d.Ledger.SelectHolding(nil, alice, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bal)

	payouts, err := d.Payouts(ctx, week, nil)
	require.NoError(t, err)
	byWallet := make(map[common.Address]int64)
	for _, p := range payouts {
		byWallet[p.Wallet] = p.Amount.Int64()
	}
	assert.Equal(t, map[common.Address]int64{builder: 200, alice: 800}, byWallet)
}

func TestSubmitMintErrors(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDaemon(t)

	valid := MintParams{Wallet: alice, BuilderTokenID: 1, TokenAmount: 1, SourceChainID: config.Base.ID, SourceTxHash: common.HexToHash("0x01")}
	tests := []struct {
		Name string
		Mod  func(p *MintParams)
	}{
		{Name: "no wallet", Mod: func(p *MintParams) { p.Wallet = common.Address{} }},
		{Name: "no tokens", Mod: func(p *MintParams) { p.TokenAmount = 0 }},
		{Name: "no hash", Mod: func(p *MintParams) { p.SourceTxHash = common.Hash{} }},
		{Name: "unknown chain", Mod: func(p *MintParams) { p.SourceChainID = 5 }},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			p := valid
			test.Mod(&p)
			_, err := d.SubmitMintTransaction(ctx, p)
			assert.Error(t, err)
		})
	}

	d.Config.Set(config.NFTContract, "")
	_, err := d.SubmitMintTransaction(ctx, valid)
	assert.Error(t, err)
}

func TestMintRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		Name    string
		Receipt *types.Receipt
		Code    int64
		Error   error
	}{
		{Name: "reverted", Receipt: revertedReceipt(), Code: ledger.RevertedErrInt, Error: ledger.RevertedErr},
		{Name: "wrong token", Receipt: transferReceipt(alice, 8, 2), Code: ledger.TransferMismatchErrInt, Error: ledger.TransferMismatchErr},
		{Name: "wrong amount", Receipt: transferReceipt(alice, 7, 1), Code: ledger.TransferMismatchErrInt, Error: ledger.TransferMismatchErr},
		{Name: "other receiver", Receipt: transferReceipt(bob, 7, 2), Code: ledger.TransferNotFoundErrInt, Error: ledger.TransferNotFoundErr},
		{Name: "transfer between holders", Receipt: transferFromReceipt(bob, alice, 7, 2), Code: ledger.NotMintedErrInt, Error: ledger.NotMintedErr},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			d, chain := newTestDaemon(t)
			hash := common.HexToHash("0xa2")
			id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 2, SourceChainID: config.Base.ID, SourceTxHash: hash})
			require.NoError(t, err)

			chain.setReceipt(hash, test.Receipt)
			status, err := d.HandlePendingTransaction(ctx, id)
			assert.ErrorIs(t, err, test.Error)
			assert.Equal(t, ledger.PendingStatusFailed, status)

			p, err := d.PendingTransaction(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.PendingStatusFailed, p.Status)
			assert.Equal(t, test.Code, p.RejectCode)
			assert.NotEmpty(t, p.Error)

			bal, err := d.Ledger.SelectHolding(nil, alice, 7)
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestMintRetried(t *testing.T) {
	ctx := context.Background()
	d, chain := newTestDaemon(t)
	d.Config.Set(config.SettlementTimeout, 20*time.Millisecond)

	hash := common.HexToHash("0xa3")
	id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Base.ID, SourceTxHash: hash})
	require.NoError(t, err)

	// no receipt yet
	status, err := d.HandlePendingTransaction(ctx, id)
	assert.Error(t, err)
	assert.Equal(t, ledger.PendingStatusPending, status)

	p, err := d.PendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, ledger.PendingStatusPending, p.Status)

	chain.setReceipt(hash, transferReceipt(alice, 7, 1))
	status, err = d.HandlePendingTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatusCompleted, status)

	t.Run("gives up", func(t *testing.T) {
		hash := common.HexToHash("0xa4")
		id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Base.ID, SourceTxHash: hash})
		require.NoError(t, err)

		var status ledger.PendingStatus
		for i := 0; i < 3; i++ {
			status, err = d.HandlePendingTransaction(ctx, id)
			assert.Error(t, err)
		}
		assert.Equal(t, ledger.PendingStatusFailed, status)

		status, err = d.HandlePendingTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.PendingStatus(""), status)
	})
}

func TestMintInterrupted(t *testing.T) {
	d, chain := newTestDaemon(t)
	d.Config.Set(config.SettlementTimeout, time.Minute)

	hash := common.HexToHash("0xa5")
	id, err := d.SubmitMintTransaction(context.Background(), MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Base.ID, SourceTxHash: hash})
	require.NoError(t, err)

	// shutting down mid wait is not a failed attempt
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		stop := time.AfterFunc(20*time.Millisecond, cancel)
		status, err := d.HandlePendingTransaction(ctx, id)
		stop.Stop()
		cancel()
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ledger.PendingStatusPending, status)
	}

	p, err := d.PendingTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatusPending, p.Status)
	assert.Zero(t, p.Attempts)

	chain.setReceipt(hash, transferReceipt(alice, 7, 1))
	status, err := d.HandlePendingTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.PendingStatusCompleted, status)
}

// decentServer serves bridge statuses. Every source transaction is delivered
// as dest after pending polls.
func decentServer(t *testing.T, status string, dest common.Hash, pending int) *httptest.Server {
	var mu sync.Mutex
	polls := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getStatus", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		src := r.URL.Query().Get("txHash")

		mu.Lock()
		polls[src]++
		n := polls[src]
		mu.Unlock()

		if n <= pending {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var res decentStatus
		res.Status = status
		if status == DecentStatusExecuted {
			res.Transaction.DstTx.Fast.TransactionHash = dest.Hex()
		}
		_ = json.NewEncoder(w).Encode(res)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCrossChainMint(t *testing.T) {
	ctx := context.Background()
	dest := common.HexToHash("0xd1")

	t.Run("delivered", func(t *testing.T) {
		d, chain := newTestDaemon(t)
		srv := decentServer(t, DecentStatusExecuted, dest, 1)
		d.Decent = NewDecentClient(srv.URL, "key")

		source := common.HexToHash("0xe1")
		id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Optimism.ID, SourceTxHash: source})
		require.NoError(t, err)

		p, err := d.PendingTransaction(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.CrossChain())
		assert.Equal(t, common.Hash{}, p.DestTxHash)

		chain.setReceipt(dest, transferReceipt(alice, 7, 1))
		status, err := d.HandlePendingTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.PendingStatusCompleted, status)

		p, err = d.PendingTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, dest, p.DestTxHash)

		t.Run("replay", func(t *testing.T) {
			// a second payment the bridge claims was delivered by the same mint
			id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Optimism.ID, SourceTxHash: common.HexToHash("0xe2")})
			require.NoError(t, err)
			status, err := d.HandlePendingTransaction(ctx, id)
			assert.ErrorIs(t, err, ledger.ReplayErr)
			assert.Equal(t, ledger.PendingStatusFailed, status)

			p, err := d.PendingTransaction(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.ReplayErrInt, p.RejectCode)

			bal, err := d.Ledger.SelectHolding(nil, alice, 7)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), bal)
		})
	})

	t.Run("bridge failed", func(t *testing.T) {
		d, _ := newTestDaemon(t)
		srv := decentServer(t, DecentStatusFailed, common.Hash{}, 0)
		d.Decent = NewDecentClient(srv.URL, "key")

		id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Optimism.ID, SourceTxHash: common.HexToHash("0xe3")})
		require.NoError(t, err)
		status, err := d.HandlePendingTransaction(ctx, id)
		assert.ErrorIs(t, err, ledger.BridgeFailedErr)
		assert.Equal(t, ledger.PendingStatusFailed, status)

		p, err := d.PendingTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.BridgeFailedErrInt, p.RejectCode)
	})
}

func TestSettlementSync(t *testing.T) {
	d, chain := newTestDaemon(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d.Config.Set(config.SettlementRetryPeriod, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string
	for i := byte(1); i <= 5; i++ {
		hash := common.BytesToHash([]byte{0xf0, i})
		chain.setReceipt(hash, transferReceipt(alice, 7, 1))
		id, err := d.SubmitMintTransaction(ctx, MintParams{Wallet: alice, BuilderTokenID: 7, TokenAmount: 1, SourceChainID: config.Base.ID, SourceTxHash: hash})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.SettlementSync(ctx)
	}()

	require.Eventually(t, func() bool {
		return d.GetSync().Completed == uint64(len(ids))
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	for _, id := range ids {
		p, err := d.PendingTransaction(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, ledger.PendingStatusCompleted, p.Status)
	}

	bal, err := d.Ledger.SelectHolding(nil, alice, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal)

	stored, err := d.Ledger.SelectSettlementSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stored.Completed)
	assert.Equal(t, testNow.Unix(), stored.LastRun)
}
