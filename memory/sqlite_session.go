// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = sqlDialect{
	name:  "sqlite",
	quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	createSessions: `CREATE TABLE IF NOT EXISTS %[1]s (
		session_id TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	createMessages: `CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		message_data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES %[2]s (session_id) ON DELETE CASCADE
	)`,
	createIndex:   `CREATE INDEX IF NOT EXISTS %[1]s ON %[2]s (session_id, id)`,
	insertSession: `INSERT OR IGNORE INTO %[1]s (session_id) VALUES (?)`,
}

type SQLiteSessionParams struct {
	// Unique identifier for the conversation session
	SessionID string

	// Optional database data source name.
	// Defaults to "file::memory:?cache=shared" (in-memory database).
	DBDataSourceName string

	// Optional name of the table to store session metadata.
	// Defaults to "agent_sessions".
	SessionTable string

	// Optional name of the table to store message data.
	// Defaults to "agent_messages".
	MessagesTable string
}

// NewSQLiteSession opens a SQLite-backed session. By default it uses an
// in-memory database that is lost when the process ends.
func NewSQLiteSession(ctx context.Context, params SQLiteSessionParams) (_ *SQLSession, err error) {
	db, err := sql.Open("sqlite3", cmp.Or(params.DBDataSourceName, "file::memory:?cache=shared"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, db.Close())
		}
	}()

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	return newSQLSession(ctx, db, sqliteDialect, params.SessionID, params.SessionTable, params.MessagesTable)
}
