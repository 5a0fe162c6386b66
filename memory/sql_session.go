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
	"slices"
	"sync"

	"github.com/nlpodyssey/agentflow/types/message"
)

// sqlDialect holds the statements that differ between database/sql backends.
// Every statement uses "?" placeholders.
type sqlDialect struct {
	name           string
	quote          func(string) string
	createSessions string // %[1]s: sessions table
	createMessages string // %[1]s: messages table, %[2]s: sessions table
	createIndex    string // %[1]s: index name, %[2]s: messages table
	insertSession  string // %[1]s: sessions table
}

func (d sqlDialect) String() string { return d.name }

// SQLSession stores conversation history through database/sql. It backs both
// SQLiteSession and MySQLSession; rows are ordered by their auto-increment id.
type SQLSession struct {
	sessionID     string
	dialect       sqlDialect
	sessionTable  string
	messagesTable string
	db            *sql.DB
	mu            sync.Mutex
}

func newSQLSession(ctx context.Context, db *sql.DB, dialect sqlDialect, sessionID, sessionTable, messagesTable string) (*SQLSession, error) {
	s := &SQLSession{
		sessionID:     sessionID,
		dialect:       dialect,
		sessionTable:  dialect.quote(cmp.Or(sessionTable, "agent_sessions")),
		messagesTable: dialect.quote(cmp.Or(messagesTable, "agent_messages")),
		db:            db,
	}
	indexName := dialect.quote("idx_" + cmp.Or(messagesTable, "agent_messages") + "_session_id")

	statements := []struct{ what, stmt string }{
		{"session table", fmt.Sprintf(dialect.createSessions, s.sessionTable)},
		{"messages table", fmt.Sprintf(dialect.createMessages, s.messagesTable, s.sessionTable)},
		{"index", fmt.Sprintf(dialect.createIndex, indexName, s.messagesTable)},
	}
	for _, st := range statements {
		if st.stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, st.stmt); err != nil {
			return nil, fmt.Errorf("error creating %s %s: %w", dialect, st.what, err)
		}
	}
	return s, nil
}

func (s *SQLSession) SessionID(context.Context) string {
	return s.sessionID
}

func (s *SQLSession) GetItems(ctx context.Context, limit int) (_ []message.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	if limit <= 0 {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT message_data FROM %s WHERE session_id = ? ORDER BY id ASC`,
			s.messagesTable), s.sessionID)
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT message_data FROM %s WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
			s.messagesTable), s.sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session items: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing sql.Rows: %w", e))
		}
	}()

	var data []string
	for rows.Next() {
		var messageData string
		if err = rows.Scan(&messageData); err != nil {
			return nil, fmt.Errorf("sql rows scan error: %w", err)
		}
		data = append(data, messageData)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sql rows scan error: %w", err)
	}

	items := decodeItems(data)
	if limit > 0 {
		slices.Reverse(items)
		items = trimOrphanToolOutputs(items)
	}
	return items, nil
}

func (s *SQLSession) AddItems(ctx context.Context, items []message.Item) (err error) {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(s.dialect.insertSession, s.sessionTable), s.sessionID); err != nil {
		return fmt.Errorf("error ensuring session exists: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (session_id, message_data) VALUES (?, ?)`, s.messagesTable)
	for _, item := range items {
		data, err := encodeItem(item)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, insert, s.sessionID, data); err != nil {
			return fmt.Errorf("error inserting item in messages table: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		s.sessionTable), s.sessionID); err != nil {
		return fmt.Errorf("error updating session timestamp: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing items: %w", err)
	}
	return nil
}

// PopItem selects and deletes the latest row in one transaction, since not
// every dialect supports DELETE ... RETURNING.
func (s *SQLSession) PopItem(ctx context.Context) (_ *message.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	var (
		id          int64
		messageData string
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, message_data FROM %s WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		s.messagesTable), s.sessionID).Scan(&id, &messageData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tx.Rollback()
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting latest item: %w", err)
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.messagesTable), id); err != nil {
		return nil, fmt.Errorf("error popping item: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing pop: %w", err)
	}

	// A corrupted entry is still removed, but nothing is returned for it.
	items := decodeItems([]string{messageData})
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *SQLSession) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.messagesTable), s.sessionID); err != nil {
		return fmt.Errorf("error clearing messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.sessionTable), s.sessionID); err != nil {
		return fmt.Errorf("error clearing session: %w", err)
	}
	return nil
}

// Close the database connection.
func (s *SQLSession) Close() error {
	return s.db.Close()
}
