package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed identity/*.sql
var identityFS embed.FS

// Identity returns the embedded goose migrations for the identity schema.
func Identity() fs.FS {
	sub, err := fs.Sub(identityFS, "identity")
	if err != nil {
		panic(err)
	}
	return sub
}

// Up applies pending identity migrations to the database behind dsn.
func Up(ctx context.Context, dsn string, log *logrus.Entry) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("migrations: open: %w", err)
	}
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Identity())
	if err != nil {
		return fmt.Errorf("migrations: provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	if log != nil {
		for _, r := range results {
			log.WithField("migration", r.Source.Path).WithField("duration", r.Duration.String()).Info("migrations: applied")
		}
	}
	return nil
}
