// Package bootstrap loads the declared bot schema into an entirely empty
// database. It is the simpler sibling of the reconciler: no introspection,
// one unconditional application of the table definitions.
package bootstrap

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/psihotips/psihotips-ops/pkg/database"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

// The schema is embedded so the entrypoint binary works without any
// external SQL files; an explicit schema file still overrides it.
//
//go:embed schema.sql
var declaredSchema string

// LoadError reports a failed schema load. The bot has nothing to run
// against afterwards, so this is fatal.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("schema bootstrap failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DeclaredSchema returns the embedded table definitions.
func DeclaredSchema() string {
	return declaredSchema
}

// SchemaFromFile reads table definitions from an external artifact.
func SchemaFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("schema file %s is empty", path)
	}
	return string(data), nil
}

// Load applies the declared schema in a single transaction.
func Load(ctx context.Context, db database.Session, schema string, log logger.Logger) error {
	log.Info("Loading declared schema into empty database")

	tx, err := db.Begin(ctx)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schema); err != nil {
		return &LoadError{Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &LoadError{Err: err}
	}

	log.Info("Declared schema loaded")
	return nil
}
