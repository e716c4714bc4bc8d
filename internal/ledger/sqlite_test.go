package ledger

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink, err := NewSQLiteSink(dbPath, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSinkPersistsRecords(t *testing.T) {
	sink := newTestSink(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(sink, logger)

	l.RecordCall("r1", "get_risk_findings", map[string]any{"entity": "db1"}, nil, StatusSuccess, 12)
	l.RecordCall("r1", "get_entity_context", nil, nil, StatusDegraded, 3)
	l.RecordCall("r2", "get_risk_findings", nil, nil, StatusFailure, 40)
	sink.Flush()

	recs, err := sink.Query(QueryOpts{RequestID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records for r1, want 2", len(recs))
	}

	recs, err = sink.Query(QueryOpts{Status: string(StatusFailure)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RequestID != "r2" {
		t.Errorf("failure query returned %+v", recs)
	}
}

func TestSinkQueryFilters(t *testing.T) {
	sink := newTestSink(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(sink, logger)

	for i := 0; i < 10; i++ {
		l.RecordCall("r1", "get_risk_findings", nil, nil, StatusSuccess, 1)
	}
	sink.Flush()

	recs, err := sink.Query(QueryOpts{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("limit ignored: got %d records", len(recs))
	}

	recs, err = sink.Query(QueryOpts{Endpoint: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("endpoint filter ignored: got %d records", len(recs))
	}
}
