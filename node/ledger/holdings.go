package ledger

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/rewards"
)

const createTableNFTPurchases = `CREATE TABLE IF NOT EXISTS "sg_nft_purchases" (
	"tx_hash"          TEXT PRIMARY KEY, -- destination tx, one purchase per mint
	"pending_id"       TEXT NOT NULL,
	"wallet"           TEXT NOT NULL,
	"builder_token_id" INTEGER NOT NULL,
	"token_amount"     INTEGER NOT NULL,
	"points"           INTEGER NOT NULL,
	"chain_id"         INTEGER NOT NULL,
	"week"             TEXT NOT NULL,
	"created_at"       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS "idx_nft_purchases_wallet" ON "sg_nft_purchases"("wallet");
`

const createTableNFTHoldings = `CREATE TABLE IF NOT EXISTS "sg_nft_holdings" (
	"wallet"           TEXT NOT NULL,
	"builder_token_id" INTEGER NOT NULL,
	"balance"          INTEGER NOT NULL
	                   CONSTRAINT "insufficient balance" CHECK ("balance" >= 0),

	PRIMARY KEY("wallet", "builder_token_id")
);
CREATE INDEX IF NOT EXISTS "idx_nft_holdings_builder" ON "sg_nft_holdings"("builder_token_id");
`

type NFTPurchase struct {
	TxHash         common.Hash
	PendingID      string
	Wallet         common.Address
	BuilderTokenID uint64
	TokenAmount    uint64
	Points         uint64
	ChainID        uint64
	Week           string
}

// InsertNFTPurchase records a settled mint. A mint transaction can only be
// applied once, a second insert returns ReplayErr.
func (l *Ledger) InsertNFTPurchase(q QueryAble, p NFTPurchase) error {
	res, err := l.q(q).Exec(`INSERT OR IGNORE INTO "sg_nft_purchases"
		("tx_hash", "pending_id", "wallet", "builder_token_id", "token_amount", "points", "chain_id", "week", "created_at")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		p.TxHash.Hex(), p.PendingID, p.Wallet.Hex(), p.BuilderTokenID, p.TokenAmount, p.Points, p.ChainID, p.Week, time.Now().Unix())
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("%s: %w", p.TxHash.Hex(), ReplayErr)
	}
	return nil
}

// AddHolding changes the NFT balance of a wallet by delta.
func (l *Ledger) AddHolding(q QueryAble, wallet common.Address, builderTokenID uint64, delta int64) error {
	_, err := l.q(q).Exec(`INSERT INTO "sg_nft_holdings" ("wallet", "builder_token_id", "balance") VALUES (?, ?, ?)
		ON CONFLICT("wallet", "builder_token_id") DO UPDATE SET "balance" = "balance" + excluded."balance";`,
		wallet.Hex(), builderTokenID, delta)
	return err
}

func (l *Ledger) SelectHolding(q QueryAble, wallet common.Address, builderTokenID uint64) (uint64, error) {
	var balance uint64
	err := l.q(q).QueryRow(`SELECT COALESCE(SUM("balance"), 0) FROM "sg_nft_holdings" WHERE "wallet" = ? AND "builder_token_id" = ?;`,
		wallet.Hex(), builderTokenID).Scan(&balance)
	return balance, err
}

// SelectHolders returns every wallet with a positive balance of a builder's NFT.
func (l *Ledger) SelectHolders(q QueryAble, builderTokenID uint64) ([]rewards.Holder, error) {
	rows, err := l.q(q).Query(`SELECT "wallet", "balance" FROM "sg_nft_holdings"
		WHERE "builder_token_id" = ? AND "balance" > 0 ORDER BY "wallet";`, builderTokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holders []rewards.Holder
	for rows.Next() {
		var h rewards.Holder
		if err := rows.Scan(&h.Wallet, &h.Balance); err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}
