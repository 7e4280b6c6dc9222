package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"house-hunter/models"
)

// PostgresRepository persists listings to PostgreSQL keyed by source_id.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository opens a connection, waits for the database to come up,
// runs schema migrations and returns a ready repository.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	repo := &PostgresRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			source_id            TEXT PRIMARY KEY,
			address              TEXT         NOT NULL,
			city                 TEXT         NOT NULL,
			state                TEXT         NOT NULL DEFAULT '',
			zip_code             TEXT         NOT NULL DEFAULT '',
			latitude             DOUBLE PRECISION,
			longitude            DOUBLE PRECISION,
			price                INTEGER      NOT NULL,
			beds                 INTEGER      NOT NULL DEFAULT 0,
			baths                NUMERIC(4,1) NOT NULL DEFAULT 0,
			sqft                 INTEGER      NOT NULL,
			lot_sqft             INTEGER,
			year_built           INTEGER,
			property_type        VARCHAR(32)  NOT NULL,
			stories              INTEGER,
			hoa_monthly          INTEGER,
			annual_tax           INTEGER,
			days_on_market       INTEGER,
			has_pool             BOOLEAN      NOT NULL DEFAULT FALSE,
			has_solar            BOOLEAN      NOT NULL DEFAULT FALSE,
			has_yard             BOOLEAN,
			crime_index          INTEGER,
			distance_to_downtown DOUBLE PRECISION,
			nearest_downtown     TEXT,
			value_score          DOUBLE PRECISION,
			url                  TEXT         NOT NULL DEFAULT '',
			description          TEXT         NOT NULL DEFAULT '',
			first_seen           TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_updated         TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_city        ON listings(city);
		CREATE INDEX IF NOT EXISTS idx_listings_price       ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_value_score ON listings(value_score);
	`)
	return err
}

// Upsert inserts or updates the row for l.SourceID. Mutable fields are
// overwritten; first_seen keeps the value from the original insert.
func (r *PostgresRepository) Upsert(ctx context.Context, l *models.Listing) (UpsertResult, error) {
	if l.SourceID == "" {
		return 0, &StorageError{SourceID: l.SourceID, Err: errors.New("empty source_id")}
	}

	// xmax = 0 only holds for freshly inserted tuples, which is how we
	// tell insert from update without a second round trip.
	const query = `
		INSERT INTO listings (
			source_id, address, city, state, zip_code, latitude, longitude,
			price, beds, baths, sqft, lot_sqft, year_built, property_type,
			stories, hoa_monthly, annual_tax, days_on_market,
			has_pool, has_solar, has_yard,
			crime_index, distance_to_downtown, nearest_downtown,
			value_score, url, description, first_seen, last_updated
		) VALUES (
			:source_id, :address, :city, :state, :zip_code, :latitude, :longitude,
			:price, :beds, :baths, :sqft, :lot_sqft, :year_built, :property_type,
			:stories, :hoa_monthly, :annual_tax, :days_on_market,
			:has_pool, :has_solar, :has_yard,
			:crime_index, :distance_to_downtown, :nearest_downtown,
			:value_score, :url, :description, NOW(), NOW()
		)
		ON CONFLICT (source_id) DO UPDATE SET
			address              = EXCLUDED.address,
			city                 = EXCLUDED.city,
			state                = EXCLUDED.state,
			zip_code             = EXCLUDED.zip_code,
			latitude             = EXCLUDED.latitude,
			longitude            = EXCLUDED.longitude,
			price                = EXCLUDED.price,
			beds                 = EXCLUDED.beds,
			baths                = EXCLUDED.baths,
			sqft                 = EXCLUDED.sqft,
			lot_sqft             = EXCLUDED.lot_sqft,
			year_built           = EXCLUDED.year_built,
			property_type        = EXCLUDED.property_type,
			stories              = EXCLUDED.stories,
			hoa_monthly          = EXCLUDED.hoa_monthly,
			annual_tax           = EXCLUDED.annual_tax,
			days_on_market       = EXCLUDED.days_on_market,
			has_pool             = EXCLUDED.has_pool,
			has_solar            = EXCLUDED.has_solar,
			has_yard             = EXCLUDED.has_yard,
			crime_index          = EXCLUDED.crime_index,
			distance_to_downtown = EXCLUDED.distance_to_downtown,
			nearest_downtown     = EXCLUDED.nearest_downtown,
			value_score          = EXCLUDED.value_score,
			url                  = EXCLUDED.url,
			description          = EXCLUDED.description,
			last_updated         = NOW()
		RETURNING (xmax = 0) AS inserted`

	rows, err := r.db.NamedQueryContext(ctx, query, l)
	if err != nil {
		return 0, &StorageError{SourceID: l.SourceID, Err: err}
	}
	defer rows.Close()

	inserted := false
	if rows.Next() {
		if err := rows.Scan(&inserted); err != nil {
			return 0, &StorageError{SourceID: l.SourceID, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &StorageError{SourceID: l.SourceID, Err: err}
	}

	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

// Query returns listings matching q, validated and ordered per the contract.
func (r *PostgresRepository) Query(ctx context.Context, q Query) ([]*models.Listing, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	sb := strings.Builder{}
	sb.WriteString("SELECT * FROM listings WHERE 1=1")
	args := []interface{}{}
	idx := 1

	addCond := func(cond string, value interface{}) {
		sb.WriteString(fmt.Sprintf(" AND "+cond, idx))
		args = append(args, value)
		idx++
	}

	f := q.Filters
	if f.MinPrice != nil {
		addCond("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		addCond("price <= $%d", *f.MaxPrice)
	}
	if f.MinBeds != nil {
		addCond("beds >= $%d", *f.MinBeds)
	}
	if f.MinBaths != nil {
		addCond("baths >= $%d", *f.MinBaths)
	}
	if f.MinSqft != nil {
		addCond("sqft >= $%d", *f.MinSqft)
	}
	if len(f.Cities) > 0 {
		placeholders := make([]string, len(f.Cities))
		for i, city := range f.Cities {
			placeholders[i] = fmt.Sprintf("$%d", idx)
			args = append(args, city)
			idx++
		}
		sb.WriteString(" AND city IN (" + strings.Join(placeholders, ",") + ")")
	}
	if f.HasYard != nil {
		addCond("has_yard = $%d", *f.HasYard)
	}
	if f.HasPool != nil {
		addCond("has_pool = $%d", *f.HasPool)
	}
	if f.HasSolar != nil {
		addCond("has_solar = $%d", *f.HasSolar)
	}
	if f.MaxAge != nil {
		addCond("year_built >= $%d", time.Now().Year()-*f.MaxAge)
	}

	// SortBy passed Normalize's allow-list, so interpolation is safe here.
	direction := "DESC"
	if q.SortDir == SortAsc {
		direction = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s NULLS LAST, source_id ASC", q.SortBy, direction))

	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", idx))
		args = append(args, q.Limit)
		idx++
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", idx))
		args = append(args, q.Offset)
	}

	var listings []*models.Listing
	if err := r.db.SelectContext(ctx, &listings, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return listings, nil
}

// GetBySourceID returns one listing or ErrNotFound.
func (r *PostgresRepository) GetBySourceID(ctx context.Context, sourceID string) (*models.Listing, error) {
	var l models.Listing
	err := r.db.GetContext(ctx, &l, `SELECT * FROM listings WHERE source_id = $1`, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", sourceID, err)
	}
	return &l, nil
}

// Count returns the number of stored listings.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM listings`); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return count, nil
}

// DeleteAll clears the listing set.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("postgres: delete all: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
