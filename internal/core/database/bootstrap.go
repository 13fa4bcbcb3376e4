package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// DefaultEmbedDim is the vector width of text-embedding-004, the embedding
// model used when EMBED_MODEL is not set. EMBED_DIM must match whatever
// model actually produces the vectors, or inserts fail at the column.
const DefaultEmbedDim = 768

const embedDimPlaceholder = "{{EMBED_DIM}}"

// EnsureBootstrapped creates the schema on first run. The pulpit_meta table
// doubles as the schema-version marker.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'pulpit_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM pulpit_meta WHERE version = 1)`).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	return nil
}

// renderBootstrapSQL fills the vector dimension into the embedded script so
// the sermon_chunks column matches the configured embedding model.
func renderBootstrapSQL(embedDim int) (string, error) {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	if embedDim <= 0 {
		embedDim = DefaultEmbedDim
	}
	return strings.ReplaceAll(string(sqlBytes), embedDimPlaceholder, strconv.Itoa(embedDim)), nil
}

func runBootstrap(ctx context.Context, db *sql.DB, embedDim int) error {
	script, err := renderBootstrapSQL(embedDim)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
