// Package ledger implements the append-only, hash-verified record of every
// upstream call made during a request. The in-memory store is authoritative
// for citation verification; a Sink may additionally persist records.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustgate/trustgate/internal/redact"
)

// Ledger is safe for concurrent use by independent requests.
type Ledger struct {
	mu        sync.Mutex
	records   []Record
	byCallID  map[string]int   // call_id -> index into records
	byRequest map[string][]int // request_id -> indexes, insertion order
	sink      Sink
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a ledger. sink may be nil for in-memory-only operation.
func New(sink Sink, logger *slog.Logger) *Ledger {
	return &Ledger{
		byCallID:  make(map[string]int),
		byRequest: make(map[string][]int),
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordCall redacts args, summarizes and redacts the response, digests
// both, and appends a new record. It returns the generated call_id.
// The raw args and response are never retained.
func (l *Ledger) RecordCall(requestID, endpoint string, args, response any, status Status, latencyMs int64) string {
	argsDigest := redact.Digest(redact.Tree(args))
	respDigest := redact.Digest(redact.Tree(redact.Summarize(response)))

	rec := Record{
		CallID:         uuid.New().String(),
		RequestID:      requestID,
		Endpoint:       endpoint,
		ArgsDigest:     argsDigest,
		ResponseDigest: respDigest,
		Status:         status,
		LatencyMs:      latencyMs,
		Timestamp:      l.now().UTC().Format(time.RFC3339Nano),
	}

	l.mu.Lock()
	idx := len(l.records)
	l.records = append(l.records, rec)
	l.byCallID[rec.CallID] = idx
	l.byRequest[requestID] = append(l.byRequest[requestID], idx)
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Append(rec)
	}

	l.logger.Debug("call recorded",
		"call_id", rec.CallID,
		"request_id", requestID,
		"endpoint", endpoint,
		"status", status,
		"latency_ms", latencyMs,
	)
	return rec.CallID
}

// RecordsForRequest returns all records for a request in insertion order.
func (l *Ledger) RecordsForRequest(requestID string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	idxs := l.byRequest[requestID]
	out := make([]Record, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.records[i])
	}
	return out
}

// VerifyCitation reports whether a record with the given call_id exists
// and was recorded against the given endpoint.
func (l *Ledger) VerifyCitation(callID, endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byCallID[callID]
	return ok && l.records[idx].Endpoint == endpoint
}

// VerifiedCitations returns citation data for every call recorded under
// the request. This is the only legitimate source of citations for any
// outward response.
func (l *Ledger) VerifiedCitations(requestID string) []Citation {
	records := l.RecordsForRequest(requestID)
	out := make([]Citation, 0, len(records))
	for _, r := range records {
		out = append(out, Citation{
			CallID:         r.CallID,
			Endpoint:       r.Endpoint,
			ArgsDigest:     r.ArgsDigest,
			ResponseDigest: r.ResponseDigest,
			Timestamp:      r.Timestamp,
			Status:         r.Status,
		})
	}
	return out
}

// Len returns the total number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close flushes and closes the durable sink, if any.
func (l *Ledger) Close() error {
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}
