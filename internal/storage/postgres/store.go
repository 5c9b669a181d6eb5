package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapPay/internal/model"
)

// Schema creates the payments journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	tx_hash           TEXT PRIMARY KEY,
	id                UUID NOT NULL,
	kind              TEXT NOT NULL,
	block_number      BIGINT NOT NULL,
	gas_used          BIGINT NOT NULL,
	input_token       TEXT NOT NULL,
	output_token      TEXT NOT NULL,
	amount_in         NUMERIC NOT NULL,
	amount_out        NUMERIC NOT NULL,
	amount_in_raw     NUMERIC NOT NULL,
	amount_out_raw    NUMERIC NOT NULL,
	amount_in_max_raw NUMERIC,
	sender            TEXT NOT NULL,
	recipient         TEXT NOT NULL,
	approval_tx_hash  TEXT,
	completed_at      TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store provides Postgres persistence for completed payments.
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

// EnsureSchema creates the payments table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// PutResult upserts a single payment.
func (s *Store) PutResult(ctx context.Context, result model.SwapResult) error {
	return s.UpsertResults(ctx, []model.SwapResult{result})
}

// UpsertResults inserts or updates payments keyed by transaction hash.
func (s *Store) UpsertResults(ctx context.Context, results []model.SwapResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO payments (
				tx_hash, id, kind, block_number, gas_used, input_token, output_token,
				amount_in, amount_out, amount_in_raw, amount_out_raw, amount_in_max_raw,
				sender, recipient, approval_tx_hash, completed_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,'')::numeric,$13,$14,NULLIF($15,''),$16,now(),now())
			ON CONFLICT (tx_hash)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				gas_used = EXCLUDED.gas_used,
				approval_tx_hash = COALESCE(EXCLUDED.approval_tx_hash, payments.approval_tx_hash),
				updated_at = now()
		`,
			r.TxHash,
			r.ID,
			r.Kind,
			int64(r.BlockNumber),
			int64(r.GasUsed),
			r.InputToken,
			r.OutputToken,
			r.AmountIn,
			r.AmountOut,
			r.AmountInRaw,
			r.AmountOutRaw,
			r.AmountInMaxRaw,
			r.Sender,
			r.Recipient,
			r.ApprovalTxHash,
			r.CompletedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range results {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var resultColumns = []string{
	"id::text", "tx_hash", "kind", "block_number", "gas_used", "input_token", "output_token",
	"amount_in::text", "amount_out::text", "amount_in_raw::text", "amount_out_raw::text",
	"amount_in_max_raw::text", "sender", "recipient", "approval_tx_hash",
	`to_char(completed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`,
}

// Filter narrows ListResults. Zero fields match everything.
type Filter struct {
	Kind   string
	Sender string
	Since  time.Time
	Limit  uint64
}

// LoadResult returns the payment recorded for txHash.
func (s *Store) LoadResult(ctx context.Context, txHash string) (model.SwapResult, bool, error) {
	if txHash == "" {
		return model.SwapResult{}, false, fmt.Errorf("tx hash required")
	}
	query, args, err := psql.Select(resultColumns...).
		From("payments").
		Where(sq.Expr("lower(tx_hash) = lower(?)", txHash)).
		ToSql()
	if err != nil {
		return model.SwapResult{}, false, fmt.Errorf("build query: %w", err)
	}

	r, err := scanResult(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SwapResult{}, false, nil
		}
		return model.SwapResult{}, false, err
	}
	return r, true, nil
}

// ListResults returns payments newest first.
func (s *Store) ListResults(ctx context.Context, filter Filter) ([]model.SwapResult, error) {
	query, args, err := listQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.SwapResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func listQuery(filter Filter) (string, []interface{}, error) {
	stmt := psql.Select(resultColumns...).From("payments").OrderBy("completed_at DESC", "tx_hash")
	if filter.Kind != "" {
		stmt = stmt.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Sender != "" {
		stmt = stmt.Where(sq.Expr("lower(sender) = lower(?)", filter.Sender))
	}
	if !filter.Since.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"completed_at": filter.Since})
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	return stmt.ToSql()
}

func scanResult(row pgx.Row) (model.SwapResult, error) {
	var r model.SwapResult
	var blockNumber, gasUsed int64
	var amountInMaxRaw, approvalTxHash *string
	err := row.Scan(
		&r.ID, &r.TxHash, &r.Kind, &blockNumber, &gasUsed, &r.InputToken, &r.OutputToken,
		&r.AmountIn, &r.AmountOut, &r.AmountInRaw, &r.AmountOutRaw,
		&amountInMaxRaw, &r.Sender, &r.Recipient, &approvalTxHash, &r.CompletedAt,
	)
	if err != nil {
		return model.SwapResult{}, err
	}
	r.BlockNumber = uint64(blockNumber)
	r.GasUsed = uint64(gasUsed)
	if amountInMaxRaw != nil {
		r.AmountInMaxRaw = *amountInMaxRaw
	}
	if approvalTxHash != nil {
		r.ApprovalTxHash = *approvalTxHash
	}
	return r, nil
}
