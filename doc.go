// Package ygggo_pg manages the lifecycle of pooled PostgreSQL connections.
//
// # Overview
//
// ygggo_pg sits between a connection pool and the database driver:
//   - Manager opens physical connections, checks idle ones before they are
//     reused (recycling) and forgets them when they leave the pool
//   - ClientWrapper pairs each connection with a cache of prepared
//     statements keyed by query text and parameter types
//   - StatementCaches reaches the cache of every live connection, so a
//     statement can be evicted everywhere after a schema change
//   - Pool is a small bounded pool driving a Manager
//
// # Quick Start
//
//	import pg "github.com/yggai/ygggo_pg"
//
//	cfg := pg.Config{
//		Host:     "localhost",
//		User:     "app",
//		Password: "secret",
//		DBName:   "app",
//		Manager:  &pg.ManagerConfig{RecyclingMethod: pg.Verified},
//	}
//	pool, err := cfg.CreatePool(pg.NoTLS{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	err = pool.WithConn(ctx, func(c *pg.Client) error {
//		stmt, err := c.Prepare(ctx, "UPDATE users SET name = $1 WHERE id = $2")
//		if err != nil {
//			return err
//		}
//		_, err = c.Exec(ctx, stmt, "Alice", 1)
//		return err
//	})
//
// # Recycling
//
// Before an idle connection is handed out again the Manager checks it
// according to its RecyclingMethod:
//   - Fast only looks at the closed flag of the driver
//   - Verified additionally runs an empty query
//   - Clean resets the session (DISCARD TEMP, RESET ALL, ...)
//   - Custom runs a caller supplied statement
//
// # Statement caches
//
// Prepare and PrepareTyped on a ClientWrapper or Transaction return the
// cached statement when there is one. After DDL that invalidates a cached
// plan, evict it from every connection:
//
//	pool.Manager().(*pg.Manager).StatementCaches.Remove(query, nil)
//
// # Configuration
//
// Config can be filled programmatically, from a file with LoadConfig or
// from environment variables with ConfigFromEnv. Environment variables use
// the prefix YGGGO_PG_ (e.g., YGGGO_PG_HOST, YGGGO_PG_MANAGER_RECYCLING_METHOD).
//
// # Other databases
//
// SQLConnector runs the same lifecycle on top of database/sql;
// NewMySQLConnector and NewSQLiteConnector build one for MySQL and SQLite.
package ygggo_pg

// Version returns the current library version.
func Version() string { return "v0.1.0" }
