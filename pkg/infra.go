package pkg

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewDB(ctx context.Context, cfg *DatabaseCfg) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, postgresDSN(cfg))
	if err != nil {
		return nil, err
	}
	return db, db.Ping(ctx)
}

// RunMigrations brings the schema up to date before the service starts
// serving. ErrNoChange is not a failure.
func RunMigrations(cfg *DatabaseCfg, dir string) error {
	m, err := migrate.New("file://"+dir, postgresDSN(cfg)+"?sslmode=disable")
	if err != nil {
		return err
	}
	defer m.Close()
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func postgresDSN(cfg *DatabaseCfg) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}

func RabbitDSN(cfg *RabbitMQCfg) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port)
}
