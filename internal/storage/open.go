package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"snda-portal/internal/domain"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

var (
	_ domain.BatchStore = (*MemoryStore)(nil)
	_ domain.BatchStore = (*FileStore)(nil)
	_ domain.BatchStore = (*PostgresStore)(nil)
)

// Options selects and configures a Store backend
type Options struct {
	Driver      string
	Path        string
	Secret      string
	DatabaseURL string
	Namespace   string
}

// Open builds the Store named by opts.Driver. The returned close func
// releases any underlying resources and is never nil.
func Open(ctx context.Context, opts Options) (domain.Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), noop, nil

	case DriverFile:
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("failed to create store directory: %w", err)
		}
		s, err := OpenFileStore(opts.Path, opts.Secret)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case DriverPostgres:
		db, err := NewPostgresConnection(opts.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, noop, err
		}
		namespace := opts.Namespace
		if namespace == "" {
			namespace = "default"
		}
		s, err := NewPostgresStore(db, namespace)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return s, func() error { return errors.Join(s.Close(), db.Close()) }, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q: %w", opts.Driver, domain.ErrInvalidInput)
	}
}
