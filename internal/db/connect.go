package db

import (
	"fmt"
	"sync/atomic"

	sqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects the backing store. Driver "sqlite" uses Path; driver
// "mysql" uses Host/Port/Database and targets a Dolt or MySQL server.
type Options struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	Database string
}

// DSN builds a MySQL-compatible DSN for connecting to a Dolt server.
func DSN(host string, port int, database string) string {
	cfg := sqldriver.NewConfig()
	cfg.User = "root"
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens a GORM connection per opts.
func Connect(opts Options) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch opts.Driver {
	case "", "sqlite":
		path := opts.Path
		if path == "" {
			path = "switchyard.db"
		}
		db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(DSN(opts.Host, opts.Port, opts.Database)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", opts.Host, opts.Port, opts.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unknown driver %q", opts.Driver)
	}
}

// memSeq distinguishes in-memory databases so concurrent tests never
// share state.
var memSeq atomic.Uint64

// ConnectMemory opens a private in-memory SQLite database, used by tests.
func ConnectMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open in-memory sqlite: %w", err)
	}
	return db, nil
}
