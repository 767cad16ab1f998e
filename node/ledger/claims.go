package ledger

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ClaimStatus string

const (
	// ClaimSelected means the donation split is chosen, but nothing was sent
	ClaimSelected  ClaimStatus = "selected"
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimClaimed   ClaimStatus = "claimed"
	ClaimFailed    ClaimStatus = "failed"
)

const createTableAirdropClaims = `CREATE TABLE IF NOT EXISTS "sg_airdrop_claims" (
	"airdrop_id"      INTEGER NOT NULL,
	"address"         TEXT NOT NULL,
	"claim_amount"    TEXT NOT NULL,
	"donation_amount" TEXT NOT NULL,
	"donation_bps"    INTEGER NOT NULL,
	"tx_hash"         TEXT NOT NULL DEFAULT '',
	"status"          TEXT NOT NULL,
	"updated_at"      INTEGER NOT NULL,

	PRIMARY KEY("airdrop_id", "address"),
	FOREIGN KEY("airdrop_id") REFERENCES "sg_airdrops"
);
`

// AirdropClaim is a wallet's progress through claiming an airdrop. The claim
// amount is what the wallet keeps, the donation amount is what it gives up.
type AirdropClaim struct {
	AirdropID      int64          `json:"airdropid"`
	Address        common.Address `json:"address"`
	ClaimAmount    *big.Int       `json:"claimamount"`
	DonationAmount *big.Int       `json:"donationamount"`
	DonationBps    int64          `json:"donationbps"`
	TxHash         common.Hash    `json:"txhash"`
	Status         ClaimStatus    `json:"status"`
	UpdatedAt      int64          `json:"updatedat"`
}

// UpsertClaimSelection records a donation choice. Only a claim that was never
// submitted, or that failed, can have its selection replaced.
func (l *Ledger) UpsertClaimSelection(q QueryAble, c AirdropClaim) error {
	res, err := l.q(q).Exec(`INSERT INTO "sg_airdrop_claims"
		("airdrop_id", "address", "claim_amount", "donation_amount", "donation_bps", "tx_hash", "status", "updated_at")
		VALUES (?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT("airdrop_id", "address") DO UPDATE SET
			"claim_amount" = excluded."claim_amount",
			"donation_amount" = excluded."donation_amount",
			"donation_bps" = excluded."donation_bps",
			"tx_hash" = '',
			"status" = excluded."status",
			"updated_at" = excluded."updated_at"
		WHERE "sg_airdrop_claims"."status" IN (?, ?);`,
		c.AirdropID, c.Address.Hex(), c.ClaimAmount.String(), c.DonationAmount.String(), c.DonationBps,
		string(ClaimSelected), time.Now().Unix(),
		string(ClaimSelected), string(ClaimFailed))
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("claim already submitted: %w", ErrInvalidTransition)
	}
	return nil
}

func (l *Ledger) SelectAirdropClaim(q QueryAble, airdropID int64, address common.Address) (AirdropClaim, error) {
	c := AirdropClaim{AirdropID: airdropID, Address: address}
	var claim, donation, hash, status string
	err := l.q(q).QueryRow(`SELECT "claim_amount", "donation_amount", "donation_bps", "tx_hash", "status", "updated_at"
		FROM "sg_airdrop_claims" WHERE "airdrop_id" = ? AND "address" = ?;`, airdropID, address.Hex()).
		Scan(&claim, &donation, &c.DonationBps, &hash, &status, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}

	var ok1, ok2 bool
	c.ClaimAmount, ok1 = new(big.Int).SetString(claim, 10)
	c.DonationAmount, ok2 = new(big.Int).SetString(donation, 10)
	if !ok1 || !ok2 {
		return c, fmt.Errorf("corrupt claim amounts for %s", address.Hex())
	}
	if hash != "" {
		c.TxHash = common.HexToHash(hash)
	}
	c.Status = ClaimStatus(status)
	return c, nil
}

// SetClaimSubmitted moves a selected claim to submitted with the hash of the
// claim transaction.
func (l *Ledger) SetClaimSubmitted(q QueryAble, airdropID int64, address common.Address, txHash common.Hash) error {
	return l.transitionClaim(q, airdropID, address, ClaimSelected, ClaimSubmitted, txHash.Hex())
}

// SetClaimSettled moves a submitted claim to claimed or failed.
func (l *Ledger) SetClaimSettled(q QueryAble, airdropID int64, address common.Address, success bool) error {
	to := ClaimClaimed
	if !success {
		to = ClaimFailed
	}
	return l.transitionClaim(q, airdropID, address, ClaimSubmitted, to, "")
}

func (l *Ledger) transitionClaim(q QueryAble, airdropID int64, address common.Address, from, to ClaimStatus, txHash string) error {
	res, err := l.q(q).Exec(`UPDATE "sg_airdrop_claims" SET "status" = ?, "updated_at" = ?,
		"tx_hash" = CASE WHEN ? = '' THEN "tx_hash" ELSE ? END
		WHERE "airdrop_id" = ? AND "address" = ? AND "status" = ?;`,
		string(to), time.Now().Unix(), txHash, txHash, airdropID, address.Hex(), string(from))
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("claim of %s on airdrop %d is not %s: %w", address.Hex(), airdropID, from, ErrInvalidTransition)
	}
	return nil
}
