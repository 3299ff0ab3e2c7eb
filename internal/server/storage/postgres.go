// Package storage opens the PostgreSQL and Redis connections the server
// runs on.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/dbx"
	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/config"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
	embeddedUser     = "postgres"
	embeddedPassword = "postgres"
	embeddedDatabase = "keyrelay"
)

// Migrator applies the schema.
type Migrator interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
}

type embeddedServer interface {
	Start() error
	Stop() error
}

// Seams for tests.
var (
	openSQL       = sql.Open
	startEmbedded = func() (embeddedServer, string, error) {
		pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(embeddedPort).
			Database(embeddedDatabase).
			Username(embeddedUser).
			Password(embeddedPassword))
		if err := pg.Start(); err != nil {
			return nil, "", err
		}
		dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
			embeddedUser, embeddedPassword, embeddedPort, embeddedDatabase)
		return pg, dsn, nil
	}
)

// DB is the pre-key store connection pool, plus the embedded PostgreSQL
// process when one was started.
type DB struct {
	*sql.DB
	embedded embeddedServer
	log      logging.Logger
}

// OpenPostgres connects to cfg.DatabaseDSN, or starts an embedded server
// when cfg.EmbeddedDB is set, verifies the connection and applies
// migrations.
func OpenPostgres(ctx context.Context, cfg *config.Config, m Migrator, log logging.Logger) (*DB, error) {
	log = log.With("module", "postgres")

	var embedded embeddedServer
	dsn := cfg.DatabaseDSN
	if cfg.EmbeddedDB {
		log.Info(ctx, "starting embedded PostgreSQL", "port", embeddedPort, "data_path", embeddedDataPath)
		srv, edsn, err := startEmbedded()
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded database: %w", err)
		}
		embedded, dsn = srv, edsn
	}

	fail := func(db *sql.DB, err error) (*DB, error) {
		if db != nil {
			_ = db.Close()
		}
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, err
	}

	db, err := openSQL("pgx", dsn)
	if err != nil {
		return fail(nil, fmt.Errorf("db open error: %w", err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		return fail(db, fmt.Errorf("db ping: %w", dbx.Classify(err)))
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		return fail(db, fmt.Errorf("migration error: %w", err))
	}

	log.Info(ctx, "database connection established", "embedded", embedded != nil)
	return &DB{DB: db, embedded: embedded, log: log}, nil
}

// Close closes the pool and stops the embedded server, if any.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.embedded != nil {
		d.log.Info(context.Background(), "stopping embedded PostgreSQL")
		if serr := d.embedded.Stop(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
