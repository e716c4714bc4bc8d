package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS call_records (
	call_id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	args_digest TEXT NOT NULL,
	response_digest TEXT NOT NULL,
	status TEXT NOT NULL,
	latency_ms BIGINT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_request ON call_records(request_id);
`

// PostgresSink writes records to Postgres asynchronously. It mirrors the
// SQLite sink's write-behind behavior for deployments that already run a
// shared database.
type PostgresSink struct {
	pool   *pgxpool.Pool
	writes chan Record
	done   chan struct{}
	logger *slog.Logger
}

// NewPostgresSink connects to the database and ensures the schema exists.
func NewPostgresSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &PostgresSink{
		pool:   pool,
		writes: make(chan Record, 256),
		done:   make(chan struct{}),
		logger: logger,
	}

	go s.writeLoop()
	return s, nil
}

// Append enqueues a record for async writing.
func (s *PostgresSink) Append(rec Record) {
	select {
	case s.writes <- rec:
	default:
		s.logger.Warn("ledger write buffer full, dropping record", "call_id", rec.CallID)
	}
}

// Close flushes pending writes and closes the pool.
func (s *PostgresSink) Close() error {
	close(s.writes)
	<-s.done
	s.pool.Close()
	return nil
}

func (s *PostgresSink) writeLoop() {
	defer close(s.done)
	for rec := range s.writes {
		_, err := s.pool.Exec(context.Background(),
			`INSERT INTO call_records (call_id, request_id, endpoint, args_digest, response_digest, status, latency_ms, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.CallID, rec.RequestID, rec.Endpoint, rec.ArgsDigest,
			rec.ResponseDigest, rec.Status, rec.LatencyMs, rec.Timestamp,
		)
		if err != nil {
			s.logger.Error("ledger write failed", "call_id", rec.CallID, "error", err)
		}
	}
}
