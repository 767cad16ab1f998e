package ledger

import (
	"context"
	"encoding/json"
)

const createTableMetadata = `CREATE TABLE IF NOT EXISTS "sg_metadata" (
	"name" TEXT NOT NULL,
	"value" BLOB,

	UNIQUE("name")
);
`

// SettlementSync is the progress of the settlement loop.
type SettlementSync struct {
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	// LastRun is the unix time the last settlement pass finished
	LastRun int64 `json:"lastrun"`
}

func (l *Ledger) InsertSettlementSync(q QueryAble, s *SettlementSync) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	_, err = l.q(q).Exec("REPLACE INTO sg_metadata (name, value) VALUES ($1, $2)", "settlement", data)
	return err
}

// SelectSettlementSync returns sql.ErrNoRows on a fresh database.
func (l *Ledger) SelectSettlementSync(ctx context.Context, q QueryAble) (*SettlementSync, error) {
	var data []byte
	err := l.q(q).QueryRowContext(ctx, "SELECT value FROM sg_metadata WHERE name = $1", "settlement").Scan(&data)
	if err != nil {
		return nil, err
	}

	s := new(SettlementSync)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
