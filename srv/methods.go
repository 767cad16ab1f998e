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

package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	jrpc "github.com/AdamSLevy/jsonrpc2/v13"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node"
	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
)

func (s *APIServer) jrpcMethods() jrpc.MethodMap {
	return jrpc.MethodMap{
		"get-airdrops":             s.getAirdrops,
		"get-airdrop":              s.getAirdrop,
		"get-airdrop-tree":         s.getAirdropTree,
		"get-airdrop-eligibility":  s.getAirdropEligibility,
		"get-airdrop-claim-status": s.getAirdropClaimStatus,
		"select-airdrop-donation":  s.selectAirdropDonation,
		"submit-airdrop-claim":     s.submitAirdropClaim,

		"submit-mint-transaction": s.submitMintTransaction,
		"get-pending-transaction": s.getPendingTransaction,
		"get-payouts":             s.getPayouts,

		"get-sync-status": s.getSyncStatus,
	}
}

// nodeError turns an error of the daemon into its api error. notFound is
// used for a missing row.
func nodeError(err error, notFound jrpc.Error) jrpc.Error {
	var e jrpc.Error
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		e = notFound
	case errors.Is(err, merkle.ErrRootMismatch):
		e = ErrorRootMismatch
	case errors.Is(err, node.ErrInvalidClaimStep):
		e = ErrorInvalidClaimStep
	case errors.Is(err, node.ErrAlreadySubmitted):
		e = ErrorInvalidTransaction
	case errors.Is(err, node.ErrUnknownChain):
		e = ErrorUnknownChain
	default:
		log.WithError(err).Error("api request failed")
		e = ErrorInternal
	}
	e.Data = err.Error()
	return e
}

func (s *APIServer) getAirdrops(ctx context.Context, data json.RawMessage) interface{} {
	if err := validate(data, nil); err != nil {
		return err
	}
	airdrops, err := s.Node.Ledger.SelectAirdrops(nil)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	if airdrops == nil {
		airdrops = []ledger.Airdrop{}
	}
	return airdrops
}

func (s *APIServer) getAirdrop(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsAirdrop{}
	if err := validate(data, &params); err != nil {
		return err
	}
	a, err := s.Node.Airdrop(ctx, params.AirdropID)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	return a
}

func (s *APIServer) getAirdropTree(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsAirdrop{}
	if err := validate(data, &params); err != nil {
		return err
	}
	doc, err := s.Node.AirdropTree(ctx, params.AirdropID)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	return doc
}

func (s *APIServer) getAirdropEligibility(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsAirdropWallet{}
	if err := validate(data, &params); err != nil {
		return err
	}
	e, err := s.Node.CheckAirdropEligibility(ctx, params.AirdropID, *params.Wallet)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	return e
}

func (s *APIServer) getAirdropClaimStatus(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsAirdropWallet{}
	if err := validate(data, &params); err != nil {
		return err
	}
	state, err := s.Node.ClaimStatus(ctx, params.AirdropID, *params.Wallet)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	return state
}

func (s *APIServer) selectAirdropDonation(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsSelectAirdropDonation{}
	if err := validate(data, &params); err != nil {
		return err
	}
	state, err := s.Node.SelectDonation(ctx, params.AirdropID, *params.Wallet, *params.DonationBps)
	if err != nil {
		if state.Step == node.StepNotQualified {
			return ErrorNotEligible
		}
		return nodeError(err, ErrorAirdropNotFound)
	}
	return state
}

type ResultSubmitTransaction struct {
	ID string `json:"id"`
}

func (s *APIServer) submitAirdropClaim(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsSubmitAirdropClaim{}
	if err := validate(data, &params); err != nil {
		return err
	}
	id, err := s.Node.SubmitClaimTransaction(ctx, params.AirdropID, *params.Wallet, *params.TxHash)
	if err != nil {
		return nodeError(err, ErrorAirdropNotFound)
	}
	return ResultSubmitTransaction{ID: id}
}

func (s *APIServer) submitMintTransaction(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsSubmitMintTransaction{}
	if err := validate(data, &params); err != nil {
		return err
	}
	id, err := s.Node.SubmitMintTransaction(ctx, node.MintParams{
		Wallet:         *params.Wallet,
		BuilderTokenID: params.BuilderTokenID,
		TokenAmount:    params.TokenAmount,
		Points:         params.Points,
		SourceChainID:  params.ChainID,
		SourceTxHash:   *params.TxHash,
	})
	if err != nil {
		return nodeError(err, ErrorTransactionNotFound)
	}
	return ResultSubmitTransaction{ID: id}
}

func (s *APIServer) getPendingTransaction(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsGetPendingTransaction{}
	if err := validate(data, &params); err != nil {
		return err
	}
	p, err := s.Node.PendingTransaction(ctx, params.ID)
	if err != nil {
		return nodeError(err, ErrorTransactionNotFound)
	}
	return p
}

func (s *APIServer) getPayouts(ctx context.Context, data json.RawMessage) interface{} {
	params := ParamsGetPayouts{}
	if err := validate(data, &params); err != nil {
		return err
	}
	payouts, err := s.Node.Payouts(ctx, params.Week, params.Wallet)
	if err != nil {
		return nodeError(err, ErrorTransactionNotFound)
	}
	if payouts == nil {
		payouts = []ledger.Payout{}
	}
	return payouts
}

type ResultGetSyncStatus struct {
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	LastRun   int64  `json:"lastrun"`
}

func (s *APIServer) getSyncStatus(ctx context.Context, data json.RawMessage) interface{} {
	sync := s.Node.GetSync()
	return ResultGetSyncStatus{
		Completed: sync.Completed,
		Failed:    sync.Failed,
		Retried:   sync.Retried,
		LastRun:   sync.LastRun,
	}
}

func validate(data json.RawMessage, params Params) error {
	if params == nil {
		if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			return jrpc.ErrorInvalidParams(`no "params" accepted`)
		}
		return nil
	}
	if len(data) == 0 {
		return params.IsValid()
	}
	if err := unmarshalStrict(data, params); err != nil {
		return jrpc.ErrorInvalidParams(err.Error())
	}
	return params.IsValid()
}

func unmarshalStrict(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	d := json.NewDecoder(b)
	d.DisallowUnknownFields()
	return d.Decode(v)
}
