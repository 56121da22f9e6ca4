package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zapquote/internal/model"
)

// Schema creates the quote journal.
const Schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id             BIGSERIAL PRIMARY KEY,
	chain_id       BIGINT      NOT NULL,
	amm_id         TEXT        NOT NULL,
	family         TEXT        NOT NULL,
	kind           TEXT        NOT NULL,
	pool_address   TEXT        NOT NULL,
	input_tokens   TEXT[]      NOT NULL,
	input_amounts  NUMERIC[]   NOT NULL,
	output_tokens  TEXT[]      NOT NULL,
	output_amounts NUMERIC[]   NOT NULL,
	min_amounts    NUMERIC[]   NOT NULL,
	price_impact   NUMERIC     NOT NULL,
	step_count     INT         NOT NULL,
	warnings       TEXT[],
	quoted_at      TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS quotes_pool_idx ON quotes (chain_id, pool_address, quoted_at);
`

const insertQuote = `
	INSERT INTO quotes (
		chain_id, amm_id, family, kind, pool_address,
		input_tokens, input_amounts, output_tokens, output_amounts, min_amounts,
		price_impact, step_count, warnings, quoted_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7::text[]::numeric[], $8, $9::text[]::numeric[], $10::text[]::numeric[],
		$11::text::numeric, $12, $13, $14)
`

// Store journals quotes in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// InsertQuotes appends quote records in one batch.
func (s *Store) InsertQuotes(ctx context.Context, records []model.QuoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		args, err := quoteArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(insertQuote, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// quoteArgs maps a record onto the insert parameters. Decimal amounts travel as text and
// are cast to NUMERIC by the statement.
func quoteArgs(r model.QuoteRecord) ([]interface{}, error) {
	quotedAt, err := time.Parse(time.RFC3339, r.QuotedAt)
	if err != nil {
		return nil, fmt.Errorf("quote %s %s: quoted_at: %w", r.Kind, r.Pool, err)
	}
	return []interface{}{
		int64(r.ChainID),
		r.AmmID,
		r.Family,
		r.Kind,
		r.Pool,
		nonNil(r.InputTokens),
		nonNil(r.InputAmounts),
		nonNil(r.OutputTokens),
		nonNil(r.OutputAmounts),
		nonNil(r.MinAmounts),
		r.PriceImpact,
		r.StepCount,
		r.Warnings,
		quotedAt,
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
