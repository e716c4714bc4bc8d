package ledger

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	call_id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	args_digest TEXT NOT NULL,
	response_digest TEXT NOT NULL,
	status TEXT NOT NULL,
	latency_ms INTEGER,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_request ON call_records(request_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON call_records(status);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON call_records(timestamp);
`

// Sink persists ledger records outside the process. Appends are
// write-behind: verification always runs against the in-memory store.
type Sink interface {
	Append(Record)
	Close() error
}

// SQLiteSink writes records to a local SQLite database asynchronously.
type SQLiteSink struct {
	db      *sql.DB
	writes  chan Record
	barrier chan chan struct{}
	done    chan struct{}
	logger  *slog.Logger
}

// NewSQLiteSink opens (or creates) the ledger database.
func NewSQLiteSink(dbPath string, logger *slog.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	// WAL mode for concurrent readers (the ledger CLI command).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteSink{
		db:      db,
		writes:  make(chan Record, 256),
		barrier: make(chan chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}

	go s.writeLoop()
	return s, nil
}

// Append enqueues a record for async writing.
func (s *SQLiteSink) Append(rec Record) {
	select {
	case s.writes <- rec:
	default:
		s.logger.Warn("ledger write buffer full, dropping record", "call_id", rec.CallID)
	}
}

// QueryOpts holds filters for ledger queries.
type QueryOpts struct {
	RequestID string
	Endpoint  string
	Status    string
	Since     string
	Limit     int
}

// Query returns persisted records matching the given filters,
// newest first.
func (s *SQLiteSink) Query(opts QueryOpts) ([]Record, error) {
	query := "SELECT call_id, request_id, endpoint, args_digest, response_digest, status, latency_ms, timestamp FROM call_records WHERE 1=1"
	var args []any

	if opts.RequestID != "" {
		query += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, opts.Endpoint)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, opts.Status)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.CallID, &r.RequestID, &r.Endpoint, &r.ArgsDigest,
			&r.ResponseDigest, &r.Status, &r.LatencyMs, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close flushes pending writes and closes the database.
func (s *SQLiteSink) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

// Flush blocks until all records enqueued before the call are written.
func (s *SQLiteSink) Flush() {
	ack := make(chan struct{})
	s.barrier <- ack
	<-ack
}

func (s *SQLiteSink) writeLoop() {
	defer close(s.done)
	for {
		select {
		case rec, ok := <-s.writes:
			if !ok {
				return
			}
			s.insert(rec)
		case ack := <-s.barrier:
			s.drain()
			close(ack)
		}
	}
}

// drain writes everything currently buffered without blocking.
func (s *SQLiteSink) drain() {
	for {
		select {
		case rec, ok := <-s.writes:
			if !ok {
				return
			}
			s.insert(rec)
		default:
			return
		}
	}
}

func (s *SQLiteSink) insert(rec Record) {
	_, err := s.db.Exec(
		`INSERT INTO call_records (call_id, request_id, endpoint, args_digest, response_digest, status, latency_ms, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.RequestID, rec.Endpoint, rec.ArgsDigest,
		rec.ResponseDigest, rec.Status, rec.LatencyMs, rec.Timestamp,
	)
	if err != nil {
		s.logger.Error("ledger write failed", "call_id", rec.CallID, "error", err)
	}
}
