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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = sqlDialect{
	name:  "mysql",
	quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	createSessions: `CREATE TABLE IF NOT EXISTS %[1]s (
		session_id VARCHAR(255) PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	createMessages: `CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(255) NOT NULL,
		message_data LONGTEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_session_id (session_id, id),
		FOREIGN KEY (session_id) REFERENCES %[2]s (session_id) ON DELETE CASCADE
	)`,
	// The index is declared inline with the table.
	createIndex:   "",
	insertSession: `INSERT IGNORE INTO %[1]s (session_id) VALUES (?)`,
}

type MySQLSessionParams struct {
	SessionID string

	// MySQL data source name, e.g. "user:password@tcp(localhost:3306)/agents".
	DSN string

	// Optional table names. Default to "agent_sessions" and "agent_messages".
	SessionTable  string
	MessagesTable string
}

// NewMySQLSession opens a MySQL-backed session and creates its tables if needed.
func NewMySQLSession(ctx context.Context, params MySQLSessionParams) (_ *SQLSession, err error) {
	dsn, err := normalizeMySQLDSN(params.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, db.Close())
		}
	}()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return newSQLSession(ctx, db, mysqlDialect, params.SessionID, params.SessionTable, params.MessagesTable)
}

// normalizeMySQLDSN validates dsn and enables the options the session relies on.
func normalizeMySQLDSN(dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", errors.New("MySQL DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
