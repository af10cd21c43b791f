package health

import (
	"context"
	"fmt"
	"os"
)

// Pinger is implemented by the SQLite database handle and the ClickHouse archive.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a Ping(ctx) method to a checker.
type PingFunc func(ctx context.Context) error

// DBChecker checks database connectivity.
type DBChecker struct {
	name string
	ping PingFunc
}

// NewDBChecker creates a checker named name that calls ping.
func NewDBChecker(name string, ping PingFunc) *DBChecker {
	return &DBChecker{name: name, ping: ping}
}

// NewSQLiteChecker checks the alert store.
func NewSQLiteChecker(db Pinger) *DBChecker {
	if db == nil {
		return NewDBChecker("sqlite", nil)
	}
	return NewDBChecker("sqlite", db.PingContext)
}

// Name returns the checker name.
func (c *DBChecker) Name() string {
	return c.name
}

// Check pings the database.
func (c *DBChecker) Check(ctx context.Context) error {
	if c.ping == nil {
		return fmt.Errorf("%s not initialized", c.name)
	}
	return c.ping(ctx)
}

// DirChecker checks that a directory exists, e.g. the ingest spool.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

// Name returns the checker name.
func (c *DirChecker) Name() string {
	return c.name
}

// Check stats the directory.
func (c *DirChecker) Check(ctx context.Context) error {
	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.path)
	}
	return nil
}
