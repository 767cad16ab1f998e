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
	"regexp"

	jrpc "github.com/AdamSLevy/jsonrpc2/v13"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/scoutgame/scoutd/node"
)

type Params interface {
	IsValid() error
}

// ParamsAirdrop scopes a request down to a single airdrop.
type ParamsAirdrop struct {
	AirdropID int64 `json:"airdropid"`
}

func (p ParamsAirdrop) IsValid() error {
	if p.AirdropID <= 0 {
		return jrpc.ErrorInvalidParams(`required: "airdropid"`)
	}
	return nil
}

// ParamsAirdropWallet is a wallet's view of an airdrop.
type ParamsAirdropWallet struct {
	ParamsAirdrop
	Wallet *common.Address `json:"wallet"`
}

func (p ParamsAirdropWallet) IsValid() error {
	if err := p.ParamsAirdrop.IsValid(); err != nil {
		return err
	}
	if p.Wallet == nil {
		return jrpc.ErrorInvalidParams(`required: "wallet"`)
	}
	return nil
}

type ParamsSelectAirdropDonation struct {
	ParamsAirdropWallet
	DonationBps *int64 `json:"donationbps"`
}

func (p ParamsSelectAirdropDonation) IsValid() error {
	if err := p.ParamsAirdropWallet.IsValid(); err != nil {
		return err
	}
	if p.DonationBps == nil {
		return jrpc.ErrorInvalidParams(`required: "donationbps"`)
	}
	switch *p.DonationBps {
	case node.DonateNone, node.DonateHalf, node.DonateAll:
		return nil
	}
	return jrpc.ErrorInvalidParams("donationbps must be 0, 5000 or 10000")
}

type ParamsSubmitAirdropClaim struct {
	ParamsAirdropWallet
	TxHash *common.Hash `json:"txhash"`
}

func (p ParamsSubmitAirdropClaim) IsValid() error {
	if err := p.ParamsAirdropWallet.IsValid(); err != nil {
		return err
	}
	if p.TxHash == nil || *p.TxHash == (common.Hash{}) {
		return jrpc.ErrorInvalidParams(`required: "txhash"`)
	}
	return nil
}

type ParamsSubmitMintTransaction struct {
	Wallet         *common.Address `json:"wallet"`
	BuilderTokenID uint64          `json:"buildertokenid"`
	TokenAmount    uint64          `json:"tokenamount"`
	Points         uint64          `json:"points,omitempty"`
	ChainID        uint64          `json:"chainid"`
	TxHash         *common.Hash    `json:"txhash"`
}

func (p ParamsSubmitMintTransaction) IsValid() error {
	if p.Wallet == nil {
		return jrpc.ErrorInvalidParams(`required: "wallet"`)
	}
	if p.TokenAmount == 0 {
		return jrpc.ErrorInvalidParams("tokenamount must be > 0")
	}
	if p.ChainID == 0 {
		return jrpc.ErrorInvalidParams(`required: "chainid"`)
	}
	if p.TxHash == nil || *p.TxHash == (common.Hash{}) {
		return jrpc.ErrorInvalidParams(`required: "txhash"`)
	}
	return nil
}

type ParamsGetPendingTransaction struct {
	ID string `json:"id"`
}

func (p ParamsGetPendingTransaction) IsValid() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return jrpc.ErrorInvalidParams("id must be a uuid")
	}
	return nil
}

var weekPattern = regexp.MustCompile(`^[0-9]{4}-W[0-9]{2}$`)

type ParamsGetPayouts struct {
	Week   string          `json:"week"`
	Wallet *common.Address `json:"wallet,omitempty"`
}

func (p ParamsGetPayouts) IsValid() error {
	if !weekPattern.MatchString(p.Week) {
		return jrpc.ErrorInvalidParams(`"week" must look like 2025-W23`)
	}
	return nil
}
