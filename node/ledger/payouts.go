package ledger

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/rewards"
)

const createTableBuilderWeeks = `CREATE TABLE IF NOT EXISTS "sg_builder_weeks" (
	"week"             TEXT NOT NULL,
	"builder_token_id" INTEGER NOT NULL,
	"builder_wallet"   TEXT NOT NULL,
	"gems"             INTEGER NOT NULL DEFAULT 0,
	"rank"             INTEGER NOT NULL DEFAULT 0, -- 0 is unranked
	"tokens"           TEXT NOT NULL DEFAULT '0',

	PRIMARY KEY("week", "builder_token_id")
);
`

const createTablePayouts = `CREATE TABLE IF NOT EXISTS "sg_payouts" (
	"week"             TEXT NOT NULL,
	"builder_token_id" INTEGER NOT NULL,
	"wallet"           TEXT NOT NULL,
	"amount"           TEXT NOT NULL,

	PRIMARY KEY("week", "builder_token_id", "wallet")
);
CREATE INDEX IF NOT EXISTS "idx_payouts_wallet" ON "sg_payouts"("wallet", "week");
`

// BuilderWeek is a builder's score and token allocation for a week.
type BuilderWeek struct {
	Week           string         `json:"week"`
	BuilderTokenID uint64         `json:"buildertokenid"`
	BuilderWallet  common.Address `json:"builderwallet"`
	Gems           uint64         `json:"gems"`
	Rank           int            `json:"rank"`
	Tokens         *big.Int       `json:"tokens"`
}

type Payout struct {
	Week           string         `json:"week"`
	BuilderTokenID uint64         `json:"buildertokenid"`
	Wallet         common.Address `json:"wallet"`
	Amount         *big.Int       `json:"amount"`
}

// UpsertBuilderGems sets the gems a builder earned in a week. The rank and
// tokens stay as they are until the week is allocated again.
func (l *Ledger) UpsertBuilderGems(q QueryAble, week string, builderTokenID uint64, wallet common.Address, gems uint64) error {
	_, err := l.q(q).Exec(`INSERT INTO "sg_builder_weeks" ("week", "builder_token_id", "builder_wallet", "gems") VALUES (?, ?, ?, ?)
		ON CONFLICT("week", "builder_token_id") DO UPDATE SET "builder_wallet" = excluded."builder_wallet", "gems" = excluded."gems";`,
		week, builderTokenID, wallet.Hex(), gems)
	return err
}

// SetBuilderAllocation stores the rank and tokens a builder was allocated.
func (l *Ledger) SetBuilderAllocation(q QueryAble, week string, builderTokenID uint64, rank int, tokens *big.Int) error {
	res, err := l.q(q).Exec(`UPDATE "sg_builder_weeks" SET "rank" = ?, "tokens" = ? WHERE "week" = ? AND "builder_token_id" = ?;`,
		rank, tokens.String(), week, builderTokenID)
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff != 1 {
		return fmt.Errorf("builder %d in week %s: %w", builderTokenID, week, ErrNotFound)
	}
	return nil
}

const selectBuilderWeek = `SELECT "week", "builder_token_id", "builder_wallet", "gems", "rank", "tokens" FROM "sg_builder_weeks"`

func scanBuilderWeek(row interface{ Scan(...interface{}) error }) (BuilderWeek, error) {
	var b BuilderWeek
	var wallet, tokens string
	if err := row.Scan(&b.Week, &b.BuilderTokenID, &wallet, &b.Gems, &b.Rank, &tokens); err != nil {
		return b, err
	}
	b.BuilderWallet = common.HexToAddress(wallet)
	var ok bool
	if b.Tokens, ok = new(big.Int).SetString(tokens, 10); !ok {
		return b, fmt.Errorf("corrupt tokens %q for builder %d", tokens, b.BuilderTokenID)
	}
	return b, nil
}

func (l *Ledger) SelectBuilderWeek(q QueryAble, week string, builderTokenID uint64) (BuilderWeek, error) {
	b, err := scanBuilderWeek(l.q(q).QueryRow(selectBuilderWeek+` WHERE "week" = ? AND "builder_token_id" = ?;`, week, builderTokenID))
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

// SelectBuilderWeeks returns every builder scored in a week by token id.
func (l *Ledger) SelectBuilderWeeks(q QueryAble, week string) ([]BuilderWeek, error) {
	rows, err := l.q(q).Query(selectBuilderWeek+` WHERE "week" = ? ORDER BY "builder_token_id";`, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []BuilderWeek
	for rows.Next() {
		b, err := scanBuilderWeek(rows)
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, b)
	}
	return weeks, rows.Err()
}

// RecomputeBuilderPayouts rewrites the payouts of one builder for a week from
// the builder's allocated tokens and the current NFT holders. A builder that
// was not scored that week has nothing to pay out.
func (l *Ledger) RecomputeBuilderPayouts(q QueryAble, week string, builderTokenID uint64, builderBps int64) error {
	q = l.q(q)
	b, err := l.SelectBuilderWeek(q, week, builderTokenID)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	holders, err := l.SelectHolders(q, builderTokenID)
	if err != nil {
		return err
	}

	shares, err := rewards.DivideTokensBetweenBuilderAndHolders(b.Tokens, b.BuilderWallet.Hex(), holders, builderBps)
	if err != nil {
		return err
	}

	// a builder holding their own nft is paid once per wallet
	merged := make(map[string]*big.Int)
	var order []string
	for _, s := range shares {
		if cur, ok := merged[s.Wallet]; ok {
			cur.Add(cur, s.Amount)
			continue
		}
		merged[s.Wallet] = new(big.Int).Set(s.Amount)
		order = append(order, s.Wallet)
	}

	if _, err := q.Exec(`DELETE FROM "sg_payouts" WHERE "week" = ? AND "builder_token_id" = ?;`, week, builderTokenID); err != nil {
		return err
	}

	stmt, err := q.Prepare(`INSERT INTO "sg_payouts" ("week", "builder_token_id", "wallet", "amount") VALUES (?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, wallet := range order {
		amount := merged[wallet]
		if amount.Sign() == 0 {
			continue
		}
		if _, err := stmt.Exec(week, builderTokenID, wallet, amount.String()); err != nil {
			return err
		}
	}
	return nil
}

// SelectPayouts returns the payouts of a week. A non nil wallet filters to
// that wallet.
func (l *Ledger) SelectPayouts(q QueryAble, week string, wallet *common.Address) ([]Payout, error) {
	query := `SELECT "week", "builder_token_id", "wallet", "amount" FROM "sg_payouts" WHERE "week" = ?`
	args := []interface{}{week}
	if wallet != nil {
		query += ` AND "wallet" = ?`
		args = append(args, wallet.Hex())
	}
	query += ` ORDER BY "builder_token_id", "wallet";`

	rows, err := l.q(q).Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		var p Payout
		var w, amount string
		if err := rows.Scan(&p.Week, &p.BuilderTokenID, &w, &amount); err != nil {
			return nil, err
		}
		p.Wallet = common.HexToAddress(w)
		var ok bool
		if p.Amount, ok = new(big.Int).SetString(amount, 10); !ok {
			return nil, fmt.Errorf("corrupt payout amount %q", amount)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
