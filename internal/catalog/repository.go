// Package catalog reads product snapshots from the catalog database.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/pkg/database"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/pagination"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate creates or upgrades the catalog_products table.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open catalog migrations: %w", err)
	}
	return database.RunMigrations(ctx, db, sub, logger)
}

// Repository implements product lookups against PostgreSQL. The payload
// column holds the full product; code, status, indexed and start_date are
// kept in their own columns for filtering and win over the payload.
type Repository struct {
	db     database.DBTX
	tracer database.QueryTracer
}

// NewRepository creates a catalog repository on db.
func NewRepository(db database.DBTX, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		tracer: database.QueryTracer{SlowThreshold: 200 * time.Millisecond, Logger: logger},
	}
}

const selectColumns = `code, status, indexed, start_date, payload`

// Get returns the product with the given code.
func (r *Repository) Get(ctx context.Context, code string) (_ *domain.Product, err error) {
	query := `SELECT ` + selectColumns + ` FROM catalog_products WHERE code = $1`

	ctx, end := r.tracer.Start(ctx, "GetProduct", query)
	defer func() { end(err) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", code)
		}
		return nil, fmt.Errorf("get product %s: %w", code, err)
	}
	return p, nil
}

// List returns one page of products ordered by code.
func (r *Repository) List(ctx context.Context, params pagination.Params) (_ pagination.Page[domain.Product], err error) {
	query := `
		SELECT ` + selectColumns + `, count(*) OVER() AS total_count
		FROM catalog_products
		ORDER BY code
		LIMIT $1 OFFSET $2`

	ctx, end := r.tracer.Start(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, params.PerPage, params.Offset())
	if err != nil {
		return pagination.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products []domain.Product
		total    int
	)
	for rows.Next() {
		var (
			p       domain.Product
			payload []byte
		)
		if err := rows.Scan(&p.Code, &p.Status, &p.Indexed, &p.StartDate, &payload, &total); err != nil {
			return pagination.Page[domain.Product]{}, fmt.Errorf("scan product row: %w", err)
		}
		if err := decodePayload(&p, payload); err != nil {
			return pagination.Page[domain.Product]{}, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[domain.Product]{}, fmt.Errorf("iterate product rows: %w", err)
	}

	return pagination.NewPage(products, total, params), nil
}

// Upsert stores the product snapshot, replacing an existing row with the
// same code.
func (r *Repository) Upsert(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO catalog_products (code, status, indexed, start_date, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET status = EXCLUDED.status, indexed = EXCLUDED.indexed, start_date = EXCLUDED.start_date,
		    payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	ctx, end := r.tracer.Start(ctx, "UpsertProduct", query)
	defer func() { end(err) }()

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product %s: %w", p.Code, err)
	}

	if _, err := r.db.Exec(ctx, query, p.Code, p.Status, p.Indexed, p.StartDate, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.Code, err)
	}
	return nil
}

// Delete removes the product row. Deleting a missing code is not an error.
func (r *Repository) Delete(ctx context.Context, code string) (err error) {
	query := `DELETE FROM catalog_products WHERE code = $1`

	ctx, end := r.tracer.Start(ctx, "DeleteProduct", query)
	defer func() { end(err) }()

	if _, err := r.db.Exec(ctx, query, code); err != nil {
		return fmt.Errorf("delete product %s: %w", code, err)
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p       domain.Product
		payload []byte
	)
	if err := row.Scan(&p.Code, &p.Status, &p.Indexed, &p.StartDate, &payload); err != nil {
		return nil, err
	}
	if err := decodePayload(&p, payload); err != nil {
		return nil, err
	}
	return &p, nil
}

// decodePayload fills p from the JSON payload while keeping the column
// values already scanned into p.
func decodePayload(p *domain.Product, payload []byte) error {
	code, status, indexed, start := p.Code, p.Status, p.Indexed, p.StartDate
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, p); err != nil {
			return fmt.Errorf("unmarshal product %s: %w", code, err)
		}
	}
	p.Code, p.Status, p.Indexed, p.StartDate = code, status, indexed, start
	return nil
}
