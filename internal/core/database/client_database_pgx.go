package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pulpit-ai/pulpit/internal/config"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// ErrStaleStatus is returned when a conditional status advance matched no
// row, i.e. the record moved (or errored) underneath the caller.
var ErrStaleStatus = errors.New("processing record not in expected status")

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// nullable maps the empty string to SQL NULL for optional uuid/text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Processing records

func (c *DatabaseClient) CreateProcessingRecord(ctx context.Context, rec *models.ProcessingRecord) error {
	if rec == nil {
		return errors.New("nil processing record")
	}
	const q = `
		INSERT INTO sermon_processing
			(id, user_id, status, text, file_name, file_size, file_type, file_pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.Status, rec.Text, rec.FileName, rec.FileSize, rec.FileType, rec.FilePages)
	return err
}

func (c *DatabaseClient) GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	const q = `
		SELECT id, user_id, status, text, COALESCE(sermon_id::text, ''),
		       COALESCE(error_message, ''), file_name, file_size, file_type,
		       file_pages, created_at, updated_at
		FROM sermon_processing
		WHERE id = $1
	`
	var rec models.ProcessingRecord
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.UserID, &rec.Status, &rec.Text, &rec.SermonID,
		&rec.ErrorMessage, &rec.FileName, &rec.FileSize, &rec.FileType,
		&rec.FilePages, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *DatabaseClient) AdvanceProcessingStatus(ctx context.Context, id, from, to, sermonID string) error {
	const q = `
		UPDATE sermon_processing
		SET status = $3,
		    sermon_id = COALESCE($4::uuid, sermon_id),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, from, to, nullable(sermonID))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("advance %s from %s to %s: %w", id, from, to, ErrStaleStatus)
	}
	return nil
}

func (c *DatabaseClient) MarkProcessingError(ctx context.Context, id, message string) error {
	const q = `
		UPDATE sermon_processing
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusError, message)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("processing record not found: %s", id)
	}
	return nil
}
