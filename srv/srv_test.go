// MIT License
//
// Copyright 2018 Canonical Ledgers, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

package srv_test

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	jrpc "github.com/AdamSLevy/jsonrpc2/v13"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node"
	"github.com/scoutgame/scoutd/node/ledger"
	. "github.com/scoutgame/scoutd/srv"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newTestServer(t *testing.T) (*node.Scoutd, *Client) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	l := new(ledger.Ledger)
	l.DB = db
	require.NoError(t, l.CreateTables())

	conf := viper.New()
	conf.Set(config.NFTContract, "0x00000000000000000000000000000000000000aa")
	d := node.New(conf, l, node.NewChains())

	ts := httptest.NewServer(NewAPIServer(conf, d).Handler())
	t.Cleanup(ts.Close)

	cl := NewClient()
	cl.ScoutdServer = ts.URL
	return d, cl
}

func requireCode(t *testing.T, err error, expected jrpc.Error) {
	t.Helper()
	var jErr jrpc.Error
	require.True(t, errors.As(err, &jErr), "expected a jsonrpc error, got %v", err)
	assert.Equal(t, expected.Code, jErr.Code)
}

func walletParams(id int64, wallet common.Address) ParamsAirdropWallet {
	return ParamsAirdropWallet{ParamsAirdrop: ParamsAirdrop{AirdropID: id}, Wallet: &wallet}
}

func createAirdrop(t *testing.T, d *node.Scoutd) ledger.Airdrop {
	a, err := d.CreateAirdrop(context.Background(), node.AirdropParams{
		Kind:    merkle.EncodingThirdweb,
		ChainID: config.Base.ID,
		Recipients: []merkle.Recipient{
			{Index: 0, Address: alice, Amount: big.NewInt(100)},
			{Index: 1, Address: bob, Amount: big.NewInt(200)},
		},
	})
	require.NoError(t, err)
	return a
}

func TestGetSyncStatus(t *testing.T) {
	_, cl := newTestServer(t)

	var res ResultGetSyncStatus
	require.NoError(t, cl.Request("get-sync-status", nil, &res))
	assert.Equal(t, ResultGetSyncStatus{}, res)

	// a trailing slash on the endpoint is tolerated
	cl.ScoutdServer += "/"
	require.NoError(t, cl.Request("get-sync-status", nil, &res))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, cl.RequestContext(ctx, "get-sync-status", nil, &res))
}

func TestAirdropMethods(t *testing.T) {
	d, cl := newTestServer(t)
	a := createAirdrop(t, d)

	var airdrops []ledger.Airdrop
	require.NoError(t, cl.Request("get-airdrops", nil, &airdrops))
	require.Len(t, airdrops, 1)
	assert.Equal(t, a.Root, airdrops[0].Root)

	var got ledger.Airdrop
	require.NoError(t, cl.Request("get-airdrop", ParamsAirdrop{AirdropID: a.ID}, &got))
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, merkle.EncodingThirdweb, got.Kind)

	err := cl.Request("get-airdrop", ParamsAirdrop{AirdropID: a.ID + 1}, &got)
	requireCode(t, err, ErrorAirdropNotFound)

	err = cl.Request("get-airdrop", map[string]interface{}{"airdropid": a.ID, "extra": 1}, &got)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	err = cl.Request("get-airdrop", nil, &got)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	var doc merkle.Document
	require.NoError(t, cl.Request("get-airdrop-tree", ParamsAirdrop{AirdropID: a.ID}, &doc))
	tree, err := doc.Tree()
	require.NoError(t, err)
	assert.Equal(t, a.Root, tree.Root())

	var e node.Eligibility
	require.NoError(t, cl.Request("get-airdrop-eligibility", walletParams(a.ID, bob), &e))
	assert.Equal(t, node.EligibilityClaimable, e.Status)
	assert.Equal(t, "200", e.Amount)

	require.NoError(t, cl.Request("get-airdrop-eligibility", walletParams(a.ID, stranger), &e))
	assert.Equal(t, node.EligibilityNotQualified, e.Status)

	err = cl.Request("get-airdrop-eligibility", map[string]interface{}{"airdropid": a.ID, "wallet": "0x12"}, &e)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))
}

func TestClaimMethods(t *testing.T) {
	d, cl := newTestServer(t)
	a := createAirdrop(t, d)
	wallet := walletParams(a.ID, bob)

	var state node.ClaimState
	require.NoError(t, cl.Request("get-airdrop-claim-status", wallet, &state))
	assert.Equal(t, node.StepClaimable, state.Step)

	half, quarter := node.DonateHalf, int64(2500)
	err := cl.Request("select-airdrop-donation", ParamsSelectAirdropDonation{ParamsAirdropWallet: wallet, DonationBps: &quarter}, &state)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	err = cl.Request("select-airdrop-donation", ParamsSelectAirdropDonation{ParamsAirdropWallet: walletParams(a.ID, stranger), DonationBps: &half}, &state)
	requireCode(t, err, ErrorNotEligible)

	require.NoError(t, cl.Request("select-airdrop-donation", ParamsSelectAirdropDonation{ParamsAirdropWallet: wallet, DonationBps: &half}, &state))
	assert.Equal(t, node.StepDonationSelected, state.Step)
	require.NotNil(t, state.Claim)
	assert.Equal(t, int64(100), state.Claim.ClaimAmount.Int64())
	assert.Equal(t, int64(100), state.Claim.DonationAmount.Int64())

	hash := common.HexToHash("0xc1")
	var submitted ResultSubmitTransaction
	require.NoError(t, cl.Request("submit-airdrop-claim", ParamsSubmitAirdropClaim{ParamsAirdropWallet: wallet, TxHash: &hash}, &submitted))
	_, err = uuid.Parse(submitted.ID)
	require.NoError(t, err)

	err = cl.Request("submit-airdrop-claim", ParamsSubmitAirdropClaim{ParamsAirdropWallet: wallet, TxHash: &hash}, &submitted)
	requireCode(t, err, ErrorInvalidClaimStep)

	var p ledger.PendingTransaction
	require.NoError(t, cl.Request("get-pending-transaction", ParamsGetPendingTransaction{ID: submitted.ID}, &p))
	assert.Equal(t, ledger.KindAirdropClaim, p.Kind)
	assert.Equal(t, ledger.PendingStatusPending, p.Status)
	assert.Equal(t, hash, p.SourceTxHash)

	require.NoError(t, cl.Request("get-airdrop-claim-status", wallet, &state))
	assert.Equal(t, node.StepSubmitted, state.Step)
}

func TestMintMethods(t *testing.T) {
	_, cl := newTestServer(t)

	hash := common.HexToHash("0xa1")
	params := ParamsSubmitMintTransaction{Wallet: &alice, BuilderTokenID: 7, TokenAmount: 2, ChainID: config.Base.ID, TxHash: &hash}

	var first, second ResultSubmitTransaction
	require.NoError(t, cl.Request("submit-mint-transaction", params, &first))
	require.NoError(t, cl.Request("submit-mint-transaction", params, &second))
	assert.Equal(t, first.ID, second.ID)

	var p ledger.PendingTransaction
	require.NoError(t, cl.Request("get-pending-transaction", ParamsGetPendingTransaction{ID: first.ID}, &p))
	assert.Equal(t, ledger.KindNFTMint, p.Kind)
	assert.Equal(t, uint64(2), p.TokenAmount)
	assert.Equal(t, hash, p.DestTxHash)

	params.ChainID = 5
	err := cl.Request("submit-mint-transaction", params, &first)
	requireCode(t, err, ErrorUnknownChain)

	params.TokenAmount = 0
	err = cl.Request("submit-mint-transaction", params, &first)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	err = cl.Request("get-pending-transaction", ParamsGetPendingTransaction{ID: "nope"}, &p)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	err = cl.Request("get-pending-transaction", ParamsGetPendingTransaction{ID: uuid.New().String()}, &p)
	requireCode(t, err, ErrorTransactionNotFound)
}

func TestGetPayouts(t *testing.T) {
	d, cl := newTestServer(t)
	week := "2025-W23"
	builder := common.HexToAddress("0x00000000000000000000000000000000000000b7")

	var payouts []ledger.Payout
	err := cl.Request("get-payouts", ParamsGetPayouts{Week: "last week"}, &payouts)
	requireCode(t, err, jrpc.ErrorInvalidParams(nil))

	require.NoError(t, cl.Request("get-payouts", ParamsGetPayouts{Week: week}, &payouts))
	assert.Empty(t, payouts)

	require.NoError(t, d.RecordBuilderGems(context.Background(), week, 7, builder, 10))
	_, err = d.ComputeWeeklyPayouts(context.Background(), week, big.NewInt(1000))
	require.NoError(t, err)

	require.NoError(t, cl.Request("get-payouts", ParamsGetPayouts{Week: week, Wallet: &builder}, &payouts))
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(1000), payouts[0].Amount.Int64())

	require.NoError(t, cl.Request("get-payouts", ParamsGetPayouts{Week: week, Wallet: &alice}, &payouts))
	assert.Empty(t, payouts)
}
