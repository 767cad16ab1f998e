package ledger

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/merkle"
)

const createTableAirdrops = `CREATE TABLE IF NOT EXISTS "sg_airdrops" (
	"id"          INTEGER PRIMARY KEY AUTOINCREMENT,
	"kind"        TEXT NOT NULL,
	"chain_id"    INTEGER NOT NULL,
	"contract"    TEXT NOT NULL DEFAULT '', -- empty until deployed
	"token"       TEXT NOT NULL,
	"merkle_root" TEXT NOT NULL,
	"tree_url"    TEXT NOT NULL DEFAULT '',
	"tree_json"   BLOB NOT NULL,
	"season"      TEXT NOT NULL DEFAULT '',
	"created_at"  INTEGER NOT NULL,
	"expires_at"  INTEGER NOT NULL DEFAULT 0 -- 0 never expires
);
`

const createTableAirdropRecipients = `CREATE TABLE IF NOT EXISTS "sg_airdrop_recipients" (
	"airdrop_id" INTEGER NOT NULL,
	"address"    TEXT NOT NULL,
	"idx"        INTEGER NOT NULL,
	"amount"     TEXT NOT NULL,

	PRIMARY KEY("airdrop_id", "address"),
	FOREIGN KEY("airdrop_id") REFERENCES "sg_airdrops"
);
`

// Airdrop is a token distribution committed to by a merkle root.
type Airdrop struct {
	ID       int64           `json:"id"`
	Kind     merkle.Encoding `json:"kind"`
	ChainID  uint64          `json:"chainid"`
	Contract common.Address  `json:"contract"`
	Token    common.Address  `json:"token"`
	Root     common.Hash     `json:"root"`
	TreeURL  string          `json:"treeurl,omitempty"`
	TreeJSON []byte          `json:"-"`
	Season   string          `json:"season,omitempty"`

	CreatedAt int64 `json:"createdat"`
	ExpiresAt int64 `json:"expiresat,omitempty"`
}

func (a Airdrop) Deployed() bool {
	return a.Contract != (common.Address{})
}

// Expired reports if the claim window closed before now.
func (a Airdrop) Expired(now time.Time) bool {
	return a.ExpiresAt > 0 && now.Unix() >= a.ExpiresAt
}

// InsertAirdrop stores the airdrop and every recipient of its tree. It should
// be called inside a transaction.
func (l *Ledger) InsertAirdrop(q QueryAble, a *Airdrop, recipients []merkle.Recipient) (int64, error) {
	q = l.q(q)

	contract := ""
	if a.Deployed() {
		contract = a.Contract.Hex()
	}
	res, err := q.Exec(`INSERT INTO "sg_airdrops"
		("kind", "chain_id", "contract", "token", "merkle_root", "tree_url", "tree_json", "season", "created_at", "expires_at")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		string(a.Kind), a.ChainID, contract, a.Token.Hex(), a.Root.Hex(), a.TreeURL, a.TreeJSON, a.Season, a.CreatedAt, a.ExpiresAt)
	if err != nil {
		return -1, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, err
	}

	stmt, err := q.Prepare(`INSERT INTO "sg_airdrop_recipients" ("airdrop_id", "address", "idx", "amount") VALUES (?, ?, ?, ?);`)
	if err != nil {
		return -1, err
	}
	defer stmt.Close()
	for _, r := range recipients {
		if _, err := stmt.Exec(id, r.Address.Hex(), r.Index, r.Amount.String()); err != nil {
			return -1, err
		}
	}

	a.ID = id
	return id, nil
}

const selectAirdrop = `SELECT "id", "kind", "chain_id", "contract", "token", "merkle_root", "tree_url", "tree_json",
	"season", "created_at", "expires_at" FROM "sg_airdrops"`

func scanAirdrop(row interface{ Scan(...interface{}) error }) (Airdrop, error) {
	var a Airdrop
	var kind, contract, token, root string
	err := row.Scan(&a.ID, &kind, &a.ChainID, &contract, &token, &root, &a.TreeURL, &a.TreeJSON,
		&a.Season, &a.CreatedAt, &a.ExpiresAt)
	if err != nil {
		return a, err
	}
	a.Kind = merkle.Encoding(kind)
	if contract != "" {
		a.Contract = common.HexToAddress(contract)
	}
	a.Token = common.HexToAddress(token)
	a.Root = common.HexToHash(root)
	return a, nil
}

func (l *Ledger) SelectAirdrop(q QueryAble, id int64) (Airdrop, error) {
	a, err := scanAirdrop(l.q(q).QueryRow(selectAirdrop+` WHERE "id" = ?;`, id))
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("airdrop %d: %w", id, ErrNotFound)
	}
	return a, err
}

// SelectAirdrops returns every airdrop, newest first.
func (l *Ledger) SelectAirdrops(q QueryAble) ([]Airdrop, error) {
	rows, err := l.q(q).Query(selectAirdrop + ` ORDER BY "id" DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var airdrops []Airdrop
	for rows.Next() {
		a, err := scanAirdrop(rows)
		if err != nil {
			return nil, err
		}
		airdrops = append(airdrops, a)
	}
	return airdrops, rows.Err()
}

// SetAirdropContract records where the claim contract for an airdrop lives.
// A deployed airdrop cannot be moved to another contract.
func (l *Ledger) SetAirdropContract(q QueryAble, id int64, contract common.Address) error {
	res, err := l.q(q).Exec(`UPDATE "sg_airdrops" SET "contract" = ? WHERE "id" = ? AND "contract" = '';`, contract.Hex(), id)
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("airdrop %d is already deployed or does not exist: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (l *Ledger) SelectAirdropRecipient(q QueryAble, id int64, address common.Address) (merkle.Recipient, error) {
	var r merkle.Recipient
	var amount string
	err := l.q(q).QueryRow(`SELECT "idx", "amount" FROM "sg_airdrop_recipients" WHERE "airdrop_id" = ? AND "address" = ?;`,
		id, address.Hex()).Scan(&r.Index, &amount)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}

	var ok bool
	r.Amount, ok = new(big.Int).SetString(amount, 10)
	if !ok {
		return r, fmt.Errorf("corrupt amount %q for %s", amount, address.Hex())
	}
	r.Address = address
	return r, nil
}
