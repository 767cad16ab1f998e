package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type PendingKind string

const (
	KindNFTMint      PendingKind = "nft_mint"
	KindAirdropClaim PendingKind = "airdrop_claim"
)

type PendingStatus string

const (
	PendingStatusPending    PendingStatus = "pending"
	PendingStatusProcessing PendingStatus = "processing"
	PendingStatusCompleted  PendingStatus = "completed"
	PendingStatusFailed     PendingStatus = "failed"
)

const createTablePendingTransactions = `CREATE TABLE IF NOT EXISTS "sg_pending_transactions" (
	"id"               TEXT PRIMARY KEY,
	"kind"             TEXT NOT NULL,
	"wallet"           TEXT NOT NULL,
	"builder_token_id" INTEGER NOT NULL DEFAULT 0,
	"token_amount"     INTEGER NOT NULL DEFAULT 0,
	"points"           INTEGER NOT NULL DEFAULT 0,
	"contract"         TEXT NOT NULL DEFAULT '',
	"source_chain_id"  INTEGER NOT NULL,
	"source_tx_hash"   TEXT NOT NULL,
	"dest_chain_id"    INTEGER NOT NULL,
	"dest_tx_hash"     TEXT NOT NULL DEFAULT '',
	"reference"        TEXT NOT NULL DEFAULT '', -- airdrop claim key for claims
	"status"           TEXT NOT NULL,
	"attempts"         INTEGER NOT NULL DEFAULT 0,
	"error"            TEXT NOT NULL DEFAULT '',
	"reject_code"      INTEGER NOT NULL DEFAULT 0,
	"created_at"       INTEGER NOT NULL,
	"updated_at"       INTEGER NOT NULL,

	UNIQUE("source_chain_id", "source_tx_hash")
);
CREATE INDEX IF NOT EXISTS "idx_pending_transactions_status" ON "sg_pending_transactions"("status", "created_at");
`

// PendingTransaction is an on chain transaction waiting to be settled into
// the ledger. For a purchase paid on another chain, the source transaction is
// the payment and the destination transaction is the mint delivered by the
// bridge. Same chain transactions have equal source and destination hashes.
type PendingTransaction struct {
	ID             string         `json:"id"`
	Kind           PendingKind    `json:"kind"`
	Wallet         common.Address `json:"wallet"`
	BuilderTokenID uint64         `json:"buildertokenid,omitempty"`
	TokenAmount    uint64         `json:"tokenamount,omitempty"`
	Points         uint64         `json:"points,omitempty"`
	Contract       common.Address `json:"contract"`
	SourceChainID  uint64         `json:"sourcechainid"`
	SourceTxHash   common.Hash    `json:"sourcetxhash"`
	DestChainID    uint64         `json:"destchainid"`
	DestTxHash     common.Hash    `json:"desttxhash"`
	Reference      string         `json:"reference,omitempty"`
	Status         PendingStatus  `json:"status"`
	Attempts       int            `json:"attempts"`
	Error          string         `json:"error,omitempty"`
	RejectCode     int64          `json:"rejectcode,omitempty"`
	CreatedAt      int64          `json:"createdat"`
	UpdatedAt      int64          `json:"updatedat"`
}

// CrossChain reports if a bridge has to deliver the transaction first.
func (p PendingTransaction) CrossChain() bool {
	return p.SourceChainID != p.DestChainID
}

// InsertPendingTransaction queues a transaction. Submitting the same source
// transaction twice does not queue it twice, the existing id is returned
// with created set to false.
func (l *Ledger) InsertPendingTransaction(q QueryAble, p *PendingTransaction) (id string, created bool, err error) {
	q = l.q(q)
	now := time.Now().Unix()

	id = uuid.New().String()
	destHash := ""
	if p.DestTxHash != (common.Hash{}) {
		destHash = p.DestTxHash.Hex()
	}
	res, err := q.Exec(`INSERT INTO "sg_pending_transactions"
		("id", "kind", "wallet", "builder_token_id", "token_amount", "points", "contract",
		 "source_chain_id", "source_tx_hash", "dest_chain_id", "dest_tx_hash", "reference",
		 "status", "created_at", "updated_at")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT("source_chain_id", "source_tx_hash") DO NOTHING;`,
		id, string(p.Kind), p.Wallet.Hex(), p.BuilderTokenID, p.TokenAmount, p.Points, p.Contract.Hex(),
		p.SourceChainID, p.SourceTxHash.Hex(), p.DestChainID, destHash, p.Reference,
		string(PendingStatusPending), now, now)
	if err != nil {
		return "", false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if aff == 1 {
		p.ID, p.Status, p.CreatedAt, p.UpdatedAt = id, PendingStatusPending, now, now
		return id, true, nil
	}

	err = q.QueryRow(`SELECT "id" FROM "sg_pending_transactions" WHERE "source_chain_id" = ? AND "source_tx_hash" = ?;`,
		p.SourceChainID, p.SourceTxHash.Hex()).Scan(&id)
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (l *Ledger) SelectPendingTransaction(ctx context.Context, q QueryAble, id string) (PendingTransaction, error) {
	var p PendingTransaction
	var kind, wallet, contract, source, dest, status string
	err := l.q(q).QueryRowContext(ctx, `SELECT "id", "kind", "wallet", "builder_token_id", "token_amount", "points",
		"contract", "source_chain_id", "source_tx_hash", "dest_chain_id", "dest_tx_hash", "reference", "status",
		"attempts", "error", "reject_code", "created_at", "updated_at"
		FROM "sg_pending_transactions" WHERE "id" = ?;`, id).
		Scan(&p.ID, &kind, &wallet, &p.BuilderTokenID, &p.TokenAmount, &p.Points,
			&contract, &p.SourceChainID, &source, &p.DestChainID, &dest, &p.Reference, &status,
			&p.Attempts, &p.Error, &p.RejectCode, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("pending transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return p, err
	}

	p.Kind = PendingKind(kind)
	p.Wallet = common.HexToAddress(wallet)
	p.Contract = common.HexToAddress(contract)
	p.SourceTxHash = common.HexToHash(source)
	if dest != "" {
		p.DestTxHash = common.HexToHash(dest)
	}
	p.Status = PendingStatus(status)
	return p, nil
}

// SelectPendingTransactionIDs returns up to limit ids waiting to be handled,
// oldest first.
func (l *Ledger) SelectPendingTransactionIDs(ctx context.Context, q QueryAble, limit int) ([]string, error) {
	rows, err := l.q(q).QueryContext(ctx, `SELECT "id" FROM "sg_pending_transactions"
		WHERE "status" = ? ORDER BY "created_at", "id" LIMIT ?;`, string(PendingStatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimPendingTransaction atomically moves a row from pending to processing.
// Only one caller can win the row, everyone else gets false.
func (l *Ledger) ClaimPendingTransaction(ctx context.Context, q QueryAble, id string) (bool, error) {
	res, err := l.q(q).ExecContext(ctx, `UPDATE "sg_pending_transactions" SET "status" = ?, "updated_at" = ?
		WHERE "id" = ? AND "status" = ?;`,
		string(PendingStatusProcessing), time.Now().Unix(), id, string(PendingStatusPending))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

// ReleasePendingTransaction hands a processing row back after a transient
// failure. Once attempts reach maxAttempts the row fails instead. The new
// status is returned.
func (l *Ledger) ReleasePendingTransaction(ctx context.Context, q QueryAble, id string, cause error, maxAttempts int) (PendingStatus, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var status string
	err := l.q(q).QueryRowContext(ctx, `UPDATE "sg_pending_transactions" SET
		"attempts" = "attempts" + 1,
		"status" = CASE WHEN "attempts" + 1 >= ? THEN ? ELSE ? END,
		"error" = ?,
		"updated_at" = ?
		WHERE "id" = ? AND "status" = ?
		RETURNING "status";`,
		maxAttempts, string(PendingStatusFailed), string(PendingStatusPending), msg, time.Now().Unix(),
		id, string(PendingStatusProcessing)).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("pending transaction %s is not processing: %w", id, ErrInvalidTransition)
	}
	return PendingStatus(status), err
}

// ReturnPendingTransaction hands a processing row back without counting an
// attempt, for work interrupted by shutdown.
func (l *Ledger) ReturnPendingTransaction(ctx context.Context, q QueryAble, id string) error {
	res, err := l.q(q).ExecContext(ctx, `UPDATE "sg_pending_transactions" SET "status" = ?, "updated_at" = ?
		WHERE "id" = ? AND "status" = ?;`,
		string(PendingStatusPending), time.Now().Unix(), id, string(PendingStatusProcessing))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("pending transaction %s is not processing: %w", id, ErrInvalidTransition)
	}
	return nil
}

// FailPendingTransaction permanently rejects a processing row.
func (l *Ledger) FailPendingTransaction(ctx context.Context, q QueryAble, id string, code int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.finishPending(ctx, q, id, PendingStatusFailed, code, msg)
}

// CompletePendingTransaction marks a processing row as settled.
func (l *Ledger) CompletePendingTransaction(ctx context.Context, q QueryAble, id string) error {
	return l.finishPending(ctx, q, id, PendingStatusCompleted, 0, "")
}

func (l *Ledger) finishPending(ctx context.Context, q QueryAble, id string, status PendingStatus, code int64, msg string) error {
	res, err := l.q(q).ExecContext(ctx, `UPDATE "sg_pending_transactions" SET "status" = ?, "reject_code" = ?, "error" = ?, "updated_at" = ?
		WHERE "id" = ? AND "status" = ?;`,
		string(status), code, msg, time.Now().Unix(), id, string(PendingStatusProcessing))
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("pending transaction %s is not processing: %w", id, ErrInvalidTransition)
	}
	return nil
}

// SetPendingDestination records the destination transaction once a bridge
// delivered it.
func (l *Ledger) SetPendingDestination(ctx context.Context, q QueryAble, id string, hash common.Hash) error {
	_, err := l.q(q).ExecContext(ctx, `UPDATE "sg_pending_transactions" SET "dest_tx_hash" = ?, "updated_at" = ? WHERE "id" = ?;`,
		hash.Hex(), time.Now().Unix(), id)
	return err
}

// ResetStuckTransactions returns rows left processing since before by a
// worker that died, so they are picked up again.
func (l *Ledger) ResetStuckTransactions(ctx context.Context, q QueryAble, before time.Time) (int64, error) {
	res, err := l.q(q).ExecContext(ctx, `UPDATE "sg_pending_transactions" SET "status" = ?, "updated_at" = ?
		WHERE "status" = ? AND "updated_at" < ?;`,
		string(PendingStatusPending), time.Now().Unix(), string(PendingStatusProcessing), before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
