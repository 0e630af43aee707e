// Package migration applies the numbered SQL files under migrations/ to a
// PostgreSQL database, recording applied ids in a bookkeeping table so reruns
// are no-ops.
package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
)

// Migration is one numbered pair of files: NNNNNN_name.up.sql and an
// optional NNNNNN_name.down.sql.
type Migration struct {
	ID      string
	Name    string
	UpSQL   string
	DownSQL string
}

// Config for the runner.
type Config struct {
	// Dir holds the *.up.sql / *.down.sql pairs.
	Dir string
	// TableName is the bookkeeping table, default schema_migrations.
	TableName string
}

// Runner applies and reverts migrations against one database.
type Runner struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
	config Config
}

// NewRunner creates a migration runner.
func NewRunner(db postgresql.PostgreSQLClient, log logger.Interface, config Config) *Runner {
	if config.TableName == "" {
		config.TableName = "schema_migrations"
	}
	return &Runner{
		db:     db,
		logger: log,
		config: config,
	}
}

// Load reads the migration pairs from dir, ordered by their numeric prefix.
// A missing down file leaves DownSQL empty; that migration cannot be
// reverted.
func Load(dir string) ([]Migration, error) {
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	sort.Strings(upFiles)

	migrations := make([]Migration, 0, len(upFiles))
	for _, upFile := range upFiles {
		upSQL, err := os.ReadFile(upFile)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}

		id := strings.TrimSuffix(filepath.Base(upFile), ".up.sql")
		name := id
		if _, rest, found := strings.Cut(id, "_"); found {
			name = rest
		}

		m := Migration{
			ID:    id,
			Name:  name,
			UpSQL: strings.TrimSpace(string(upSQL)),
		}
		if downSQL, err := os.ReadFile(strings.TrimSuffix(upFile, ".up.sql") + ".down.sql"); err == nil {
			m.DownSQL = strings.TrimSpace(string(downSQL))
		}
		migrations = append(migrations, m)
	}

	return migrations, nil
}

// Pending filters migrations down to the ones not yet applied, preserving
// order.
func Pending(migrations []Migration, applied map[string]bool) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if !applied[m.ID] {
			pending = append(pending, m)
		}
	}
	return pending
}

// Up applies every pending migration, each in its own transaction together
// with its bookkeeping row.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}

	migrations, err := Load(r.config.Dir)
	if err != nil {
		return err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return err
	}

	for _, m := range Pending(migrations, applied) {
		err := postgresql.WithTx(ctx, r.db, func(txCtx context.Context) error {
			if _, err := r.db.Exec(txCtx, m.UpSQL); err != nil {
				return err
			}
			record := fmt.Sprintf("INSERT INTO %s (id, name) VALUES ($1, $2)", r.config.TableName)
			_, err := r.db.Exec(txCtx, record, m.ID, m.Name)
			return err
		})
		if err != nil {
			return errors.NewTracer("failed to apply migration " + m.ID).Wrap(err)
		}
		r.logger.Info("applied migration", logger.Field{Key: "id", Value: m.ID})
	}

	return nil
}

// Down reverts the most recently applied migrations, newest first.
func (r *Runner) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return errors.NewTracer("steps must be positive for a down migration")
	}
	if err := r.ensureTable(ctx); err != nil {
		return err
	}

	migrations, err := Load(r.config.Dir)
	if err != nil {
		return err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return err
	}

	var toRevert []Migration
	for i := len(migrations) - 1; i >= 0 && len(toRevert) < steps; i-- {
		if applied[migrations[i].ID] {
			toRevert = append(toRevert, migrations[i])
		}
	}

	for _, m := range toRevert {
		if m.DownSQL == "" {
			return errors.NewTracer("no down file for migration " + m.ID)
		}
		err := postgresql.WithTx(ctx, r.db, func(txCtx context.Context) error {
			if _, err := r.db.Exec(txCtx, m.DownSQL); err != nil {
				return err
			}
			remove := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.config.TableName)
			_, err := r.db.Exec(txCtx, remove, m.ID)
			return err
		})
		if err != nil {
			return errors.NewTracer("failed to revert migration " + m.ID).Wrap(err)
		}
		r.logger.Info("reverted migration", logger.Field{Key: "id", Value: m.ID})
	}

	return nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, r.config.TableName)

	if _, err := r.db.Exec(ctx, create); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[string]bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s ORDER BY applied_at", r.config.TableName)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.TracerFromError(err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return applied, nil
}
