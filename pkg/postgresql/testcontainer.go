package postgresql

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContainer wraps a PostgreSQL testcontainer with utilities
type TestContainer struct {
	Container testcontainers.Container
	Client    PostgreSQLClient
	ConnStr   string
	ctx       context.Context
}

// TestContainerConfig holds configuration for the test container
type TestContainerConfig struct {
	Image            string
	Database         string
	Username         string
	Password         string
	MigrationsPath   string
	MigrationPattern string
	StartupTimeout   time.Duration
	SkipMigrations   bool
}

// DefaultTestContainerConfig returns a default configuration
func DefaultTestContainerConfig() *TestContainerConfig {
	return &TestContainerConfig{
		Image:            "postgres:15-alpine",
		Database:         "test_db",
		Username:         "test_user",
		Password:         "test_pass",
		StartupTimeout:   5 * time.Minute,
		MigrationPattern: "*.up.sql",
	}
}

// NewTestContainer creates and starts a new PostgreSQL test container
func NewTestContainer(ctx context.Context, config *TestContainerConfig) (*TestContainer, error) {
	if config == nil {
		config = DefaultTestContainerConfig()
	}

	req := []testcontainers.ContainerCustomizer{
		testcontainers.WithImage(config.Image),
		postgres.WithDatabase(config.Database),
		postgres.WithUsername(config.Username),
		postgres.WithPassword(config.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(config.StartupTimeout),
		),
	}

	container, err := postgres.RunContainer(ctx, req...)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	tc := &TestContainer{
		Container: container,
		Client: &Client{
			pool: pool,
		},
		ConnStr: connStr,
		ctx:     ctx,
	}

	if config.MigrationsPath != "" && !config.SkipMigrations {
		if err := tc.RunMigrations(config.MigrationsPath, config.MigrationPattern); err != nil {
			tc.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return tc, nil
}

// Close closes the connection and terminates the container
func (tc *TestContainer) Close() error {
	var errs []string

	if tc.Client != nil {
		tc.Client.Close()
	}

	if tc.Container != nil {
		if err := tc.Container.Terminate(tc.ctx); err != nil {
			errs = append(errs, fmt.Sprintf("failed to terminate container: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RunMigrations runs SQL migration files from the specified directory
func (tc *TestContainer) RunMigrations(migrationsPath, pattern string) error {
	if tc.Client == nil {
		return fmt.Errorf("database client is not initialized")
	}

	if pattern == "" {
		pattern = "*.up.sql"
	}

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations path does not exist: %s", migrationsPath)
	}

	migrationFiles, err := tc.getMigrationFiles(migrationsPath, pattern)
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	if len(migrationFiles) == 0 {
		return fmt.Errorf("no migration files found in %s with pattern %s", migrationsPath, pattern)
	}

	for _, file := range migrationFiles {
		filePath := filepath.Join(migrationsPath, file)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filePath, err)
		}

		if _, err := tc.Client.Exec(tc.ctx, string(content)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", file, err)
		}
	}

	return nil
}

// TruncateAllTables truncates every table in the public schema.
func (tc *TestContainer) TruncateAllTables() error {
	rows, err := tc.Client.Query(tc.ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public'`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return err
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range tables {
		if _, err := tc.Client.Exec(tc.ctx,
			fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return err
		}
	}

	return nil
}

// ExecuteSQL executes an arbitrary SQL statement.
func (tc *TestContainer) ExecuteSQL(sql string) error {
	_, err := tc.Client.Exec(tc.ctx, sql)
	return err
}

// GetConnectionString returns the container's connection string.
func (tc *TestContainer) GetConnectionString() string {
	return tc.ConnStr
}

// getMigrationFiles returns sorted list of migration files matching the pattern
func (tc *TestContainer) getMigrationFiles(migrationsPath, pattern string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(migrationsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(migrationsPath, path)
		if err != nil {
			return err
		}

		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err != nil {
			return err
		}

		if matched {
			files = append(files, relPath)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return files, nil
}
