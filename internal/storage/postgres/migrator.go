package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

const migrationsDir = "migrations"

var (
	//go:embed migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	})
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг для безопасного поведения.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

// MigrationStatus возвращает текущую версию схемы и признак незавершённой миграции.
func (s *Store) MigrationStatus(ctx context.Context) (version uint, dirty bool, err error) {
	err = s.withMigrator(ctx, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

func (s *Store) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	m, err := newMigrator(migrationsFS, s.dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = fn(m)
	var short migrate.ErrShortLimit
	switch {
	case err == nil, errors.Is(err, migrate.ErrNoChange), errors.As(err, &short):
		return nil
	default:
		return fmt.Errorf("run migrations: %w", err)
	}
}

func newMigrator(fsys fs.FS, dsn string) (*migrate.Migrate, error) {
	if err := validateMigrations(fsys); err != nil {
		return nil, err
	}

	dbURL, err := migrationDatabaseURL(dsn)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	m.Log = migrateLogger{entry: log.WithField("component", "migrate")}
	return m, nil
}

// migrationDatabaseURL переводит postgres DSN в URL драйвера pgx5.
func migrationDatabaseURL(dsn string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("migrations require a URL-style postgres DSN, got %q", redactDSN(dsn))
}

func redactDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < idx {
			return dsn[:scheme+3] + "***" + dsn[idx:]
		}
	}
	if len(dsn) > 16 {
		return dsn[:16] + "..."
	}
	return dsn
}

// validateMigrations проверяет, что у каждой версии есть непустые up и down файлы.
func validateMigrations(fsys fs.FS) error {
	files, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no migration files found")
	}

	type pair struct {
		name     string
		up, down bool
	}
	versions := make(map[string]*pair)

	for _, file := range files {
		base := path.Base(file)
		matches := migrationFilePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			return fmt.Errorf("invalid migration file name: %s", base)
		}
		version, name, direction := matches[1], matches[2], matches[3]

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return fmt.Errorf("migration file is empty: %s", base)
		}

		p, ok := versions[version]
		if !ok {
			p = &pair{name: name}
			versions[version] = p
		} else if p.name != name {
			return fmt.Errorf("migration name mismatch for version %s: %s vs %s", version, p.name, name)
		}
		if direction == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	for version, p := range versions {
		if !p.up || !p.down {
			return fmt.Errorf("migration %s_%s must have both up and down files", version, p.name)
		}
	}
	return nil
}

// migrateLogger направляет вывод golang-migrate в logrus.
type migrateLogger struct {
	entry *log.Entry
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.entry.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.entry.Logger.IsLevelEnabled(log.DebugLevel)
}
