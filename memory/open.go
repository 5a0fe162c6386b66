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
	"fmt"
	"strings"
	"time"
)

// ClosableSession is a Session owning a connection that must be released.
type ClosableSession interface {
	Session
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a session backend.
type Options struct {
	Backend   string
	SessionID string

	// DSN is the data source name for SQL backends, or the server address
	// for Redis.
	DSN string

	SessionTable  string
	MessagesTable string

	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Open creates a session on the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (ClosableSession, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	switch strings.ToLower(opts.Backend) {
	case BackendSQLite, "sqlite3":
		return opened(NewSQLiteSession(ctx, SQLiteSessionParams{
			SessionID:        opts.SessionID,
			DBDataSourceName: opts.DSN,
			SessionTable:     opts.SessionTable,
			MessagesTable:    opts.MessagesTable,
		}))
	case BackendMySQL:
		return opened(NewMySQLSession(ctx, MySQLSessionParams{
			SessionID:     opts.SessionID,
			DSN:           opts.DSN,
			SessionTable:  opts.SessionTable,
			MessagesTable: opts.MessagesTable,
		}))
	case BackendPostgres, "postgresql", "pgx":
		return opened(NewPgSession(ctx, PgSessionParams{
			SessionID:        opts.SessionID,
			ConnectionString: opts.DSN,
			SessionTable:     opts.SessionTable,
			MessagesTable:    opts.MessagesTable,
		}))
	case BackendRedis:
		return opened(NewRedisSession(ctx, RedisSessionParams{
			SessionID: opts.SessionID,
			Addr:      opts.DSN,
			Password:  opts.RedisPassword,
			DB:        opts.RedisDB,
			TTL:       opts.TTL,
		}))
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}
}

// opened avoids returning a typed nil inside a non-nil interface.
func opened[S ClosableSession](s S, err error) (ClosableSession, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
