// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pools parley keeps
// beside its session directories.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, do their work, and [Pool.Put] it back, or use
// [Pool.With] to do both. A connection belongs to one goroutine at a
// time.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL so a chat process and a "sessions" command can
//     read while the other writes.
//   - synchronous=NORMAL. The database is a cache over the session
//     directories, so losing the last commit to a power failure only
//     costs a rebuild.
//   - busy_timeout=5000 to wait out a concurrent writer instead of
//     failing with SQLITE_BUSY.
//   - cache_size=-4096 (4 MB per connection) and temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(root, "index.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
package sqlitepool
