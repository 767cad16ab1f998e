package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scoutgame/scoutd/config"
	"github.com/spf13/viper"
)

// QueryAble is satisfied by both *sql.DB and *sql.Tx, so helpers can run
// inside or outside of a transaction.
type QueryAble interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	Prepare(query string) (*sql.Stmt, error)
}

// Ledger is the sqlite state of the daemon: airdrops and their claims, the
// settlement queue, NFT holdings and weekly payouts.
type Ledger struct {
	Config *viper.Viper

	// This is the sqlite db to store state
	DB *sql.DB
}

func New(conf *viper.Viper) *Ledger {
	l := new(Ledger)
	l.Config = conf
	return l
}

// Init opens the database at the configured path and creates any missing
// tables.
func (l *Ledger) Init() error {
	path := os.ExpandEnv(l.Config.GetString(config.SqliteDBPath))
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
			return err
		}
	}

	dsn := path
	var opts []string
	if l.Config.GetBool(config.SQLDBWalMode) {
		opts = append(opts, "_journal_mode=WAL")
	}
	if mode := l.Config.GetString(config.CustomSQLDBMode); mode != "" {
		opts = append(opts, mode)
	}
	if len(opts) > 0 {
		dsn = fmt.Sprintf("file:%s?%s", path, strings.Join(opts, "&"))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	l.DB = db

	if err := l.CreateTables(); err != nil {
		return err
	}
	if err := l.CheckSchemaVersion(nil); err != nil {
		return err
	}
	return l.MarkSchemaVersion(nil)
}

// CreateTables is also used to set up in memory databases for unit tests.
func (l *Ledger) CreateTables() error {
	for _, stmt := range []string{
		createTableMetadata,
		createTableSchemaVersion,
		createTableAirdrops,
		createTableAirdropRecipients,
		createTableAirdropClaims,
		createTablePendingTransactions,
		createTableNFTPurchases,
		createTableNFTHoldings,
		createTableBuilderWeeks,
		createTablePayouts,
	} {
		if _, err := l.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	if l.DB == nil {
		return nil
	}
	return l.DB.Close()
}

func (l *Ledger) q(q QueryAble) QueryAble {
	if q == nil {
		return l.DB // nil defaults to db
	}
	return q
}

// Rollback is meant to be deferred right after BeginTx. It is a no-op once
// the transaction has been committed.
func Rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
