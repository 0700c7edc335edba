// Команда migrate применяет и откатывает миграции схемы заказов в PostgreSQL.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/ordercore/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

// migrator — часть postgres.Store, нужная командам.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (version uint, dirty bool, err error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

func openPostgres(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn)
}

func newApp(out io.Writer, open openFunc) *cli.App {
	withStore := func(fn func(ctx context.Context, store migrator) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			store, err := open(ctx, c.String("dsn"))
			if err != nil {
				return fmt.Errorf("open postgres store: %w", err)
			}
			defer store.Close()

			return fn(ctx, store)
		}
	}

	printStatus := func(ctx context.Context, store migrator, prefix string) error {
		version, dirty, err := store.MigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		_, _ = fmt.Fprintf(out, "%s: version=%d dirty=%t\n", prefix, version, dirty)
		return nil
	}

	return &cli.App{
		Name:      "migrate",
		Usage:     "manage ordercore PostgreSQL schema",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dsn",
				Usage:    "PostgreSQL DSN",
				EnvVars:  []string{"ORDERCORE_POSTGRES_DSN"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall command timeout",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to apply (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					return withStore(func(ctx context.Context, store migrator) error {
						if err := store.MigrateUp(ctx, c.Int("steps")); err != nil {
							return fmt.Errorf("migrate up: %w", err)
						}
						return printStatus(ctx, store, "migrate up ok")
					})(c)
				},
			},
			{
				Name:  "down",
				Usage: "roll back applied migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back", Value: 1},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps <= 0 {
						return fmt.Errorf("steps must be > 0, got %d", steps)
					}
					return withStore(func(ctx context.Context, store migrator) error {
						if err := store.MigrateDown(ctx, steps); err != nil {
							return fmt.Errorf("migrate down: %w", err)
						}
						return printStatus(ctx, store, "migrate down ok")
					})(c)
				},
			},
			{
				Name:  "status",
				Usage: "print current schema version",
				Action: withStore(func(ctx context.Context, store migrator) error {
					return printStatus(ctx, store, "migration status")
				}),
			},
		},
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newApp(os.Stdout, openPostgres).RunContext(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}
}
