package ledger

import (
	"fmt"
	"time"
)

// SchemaVersion is bumped whenever a release changes how existing rows are
// interpreted. A node refuses to open a database written by a newer version,
// as it would silently misread it.
var SchemaVersion = 1

const createTableSchemaVersion = `CREATE TABLE IF NOT EXISTS "sg_schema_version" (
	"version"        INTEGER NOT NULL,
	"unix_timestamp" INTEGER NOT NULL,

	PRIMARY KEY("version")
);
`

// MarkSchemaVersion records that the current version opened the database.
func (l *Ledger) MarkSchemaVersion(q QueryAble) error {
	_, err := l.q(q).Exec(`INSERT OR IGNORE INTO "sg_schema_version" ("version", "unix_timestamp") VALUES (?, ?);`,
		SchemaVersion, time.Now().Unix())
	return err
}

// HighestSchemaVersion returns 0 for a fresh database.
func (l *Ledger) HighestSchemaVersion(q QueryAble) (int, error) {
	var version int
	err := l.q(q).QueryRow(`SELECT COALESCE(max(version), 0) FROM sg_schema_version;`).Scan(&version)
	return version, err
}

func (l *Ledger) CheckSchemaVersion(q QueryAble) error {
	highest, err := l.HighestSchemaVersion(q)
	if err != nil {
		return err
	}
	if highest > SchemaVersion {
		return fmt.Errorf("the database was written by schema version %d, this node only understands up to version %d. Update the node before starting it against this database", highest, SchemaVersion)
	}
	return nil
}
