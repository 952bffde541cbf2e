// MeterDB contains the history of accepted meter readings.
// This database should only be written to by meter_collector
// but can be read by any service.
package meterdb

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/NotCoffee418/dbmigrator"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	dbMu sync.RWMutex
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// InitializeDatabase must be called manually on startup.
// It opens the database at path and applies migrations.
func InitializeDatabase(path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open meter db: %w", err)
	}
	// SQLite only handles one writer at a time.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to meter db: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		conn,
		migrationFS,
		"migrations",
	)

	dbMu.Lock()
	previous := db
	db = conn
	dbMu.Unlock()
	if previous != nil {
		previous.Close()
	}
	return nil
}

func GetDB() *sql.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	if db == nil {
		panic("meterdb: InitializeDatabase was not called")
	}
	return db
}

func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}
