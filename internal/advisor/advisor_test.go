package advisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustgate/trustgate/internal/evidence"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/safety"
	"github.com/trustgate/trustgate/internal/sanitize"
	"github.com/trustgate/trustgate/internal/schema"
	"github.com/trustgate/trustgate/internal/upstream"
)

// scriptedTransport returns canned payloads (or errors) per endpoint.
type scriptedTransport struct {
	mu       sync.Mutex
	payloads map[string]map[string]any
	errs     map[string]error
	calls    []string
}

func (s *scriptedTransport) Call(ctx context.Context, endpoint string, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, endpoint)
	if err, ok := s.errs[endpoint]; ok {
		return nil, err
	}
	if p, ok := s.payloads[endpoint]; ok {
		return p, nil
	}
	return map[string]any{}, nil
}

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestAdvisor(t *testing.T, transport upstream.Transport) (*Advisor, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(nil, logger)
	gate := safety.NewGate()
	opts := upstream.Options{
		MaxAttempts:      2,
		BaseBackoff:      time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		CallTimeout:      time.Second,
		FailureThreshold: 10,
		Cooldown:         time.Minute,
	}
	client := upstream.NewClient(transport, l, nil, opts, logger)
	a := New(
		sanitize.New(logger),
		client,
		gate,
		evidence.NewBuilder(l),
		schema.NewValidator(gate),
		l,
		logger,
	)
	return a, l
}

func testRequest() AdviseRequest {
	return AdviseRequest{
		FindingID: "f1",
		TenantID:  "t1",
		Entity: Entity{
			Type: "database",
			ID:   "db1",
			Name: "orders-primary",
		},
		Severity:      "high",
		RiskScore:     0.8,
		PolicyContext: map[string]any{"event_id": "e1"},
	}
}

func TestAdviseHappyPath(t *testing.T) {
	transport := &scriptedTransport{
		payloads: map[string]map[string]any{
			"get_risk_findings": {
				"summary":         "publicly exposed database with stale credentials",
				"risk_factors":    []any{"public endpoint", "stale credentials"},
				"impact_analysis": "data exposure likely",
				"confidence":      0.82,
			},
			"get_mitigation_guidance": {
				"actions": []any{
					map[string]any{
						"action_type":    "investigate",
						"target":         "db1",
						"reason":         "confirm exposure",
						"risk_reduction": 0.2,
						"confidence":     0.8,
						"priority":       1.0,
					},
					map[string]any{
						"action_type":    "emergency_lockdown",
						"target":         "org",
						"reason":         "overreaction",
						"risk_reduction": 0.9,
						"confidence":     0.6,
						"priority":       1.0,
					},
				},
			},
		},
	}
	a, l := newTestAdvisor(t, transport)

	resp, err := a.Advise(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "publicly exposed database with stale credentials", resp.Summary)
	assert.Equal(t, []string{"public endpoint", "stale credentials"}, resp.RiskFactors)
	assert.InDelta(t, 0.82, resp.Confidence, 1e-9)
	assert.False(t, resp.Degraded)

	// Two upstream calls, two citations, all independently verifiable.
	require.Len(t, resp.Citations, 2)
	for _, c := range resp.Citations {
		assert.True(t, l.VerifyCitation(c.CallID, c.Endpoint), "citation %s must verify", c.CallID)
	}

	// Both proposals come back; the under-evidenced one is rejected but
	// keeps its severity fields.
	require.Len(t, resp.RecommendedActions, 2)
	investigate, lockdown := resp.RecommendedActions[0], resp.RecommendedActions[1]
	assert.True(t, investigate.IsValid)
	assert.False(t, lockdown.IsValid)
	assert.Equal(t, safety.BlastOrgWide, lockdown.BlastRadius)
	assert.Equal(t, safety.ImpactCritical, lockdown.ImpactLevel)
	assert.NotEmpty(t, lockdown.ValidationErrors)

	// Chain is complete: event, finding, and recorded calls all present.
	require.Len(t, resp.EvidenceChain, 1)
	chain := resp.EvidenceChain[0]
	assert.True(t, chain.ChainComplete)
	assert.Equal(t, "e1", chain.EventID)
	assert.Equal(t, "f1", chain.FindingID)
	assert.Len(t, chain.CallIDs, 2)
}

func TestUnsafeInputStopsBeforeUpstream(t *testing.T) {
	transport := &scriptedTransport{}
	a, l := newTestAdvisor(t, transport)

	req := testRequest()
	req.PolicyContext["note"] = "1' OR '1'='1 UNION SELECT * FROM secrets"

	_, err := a.Advise(context.Background(), req)

	var unsafeErr *UnsafeInputError
	require.ErrorAs(t, err, &unsafeErr)
	assert.NotEmpty(t, unsafeErr.Findings)
	assert.Equal(t, 0, transport.callCount(), "no upstream call may happen after rejection")
	assert.Equal(t, 0, l.Len(), "nothing recorded for a rejected request")
}

func TestFindingsFailureFailsRequest(t *testing.T) {
	transport := &scriptedTransport{
		errs: map[string]error{"get_risk_findings": errors.New("down")},
	}
	a, _ := newTestAdvisor(t, transport)

	_, err := a.Advise(context.Background(), testRequest())
	require.ErrorIs(t, err, upstream.ErrUnavailable)
}

func TestGuidanceFailureDegradesResponse(t *testing.T) {
	transport := &scriptedTransport{
		payloads: map[string]map[string]any{
			"get_risk_findings": {
				"summary":    "exposed service",
				"confidence": 0.7,
			},
		},
		errs: map[string]error{"get_mitigation_guidance": errors.New("down")},
	}
	a, _ := newTestAdvisor(t, transport)

	resp, err := a.Advise(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Empty(t, resp.RecommendedActions)
	require.Len(t, resp.Citations, 2, "the failed call is still recorded and citable")
	assert.Equal(t, ledger.StatusFailure, resp.Citations[1].Status)
}

func TestConfidenceClamped(t *testing.T) {
	transport := &scriptedTransport{
		payloads: map[string]map[string]any{
			"get_risk_findings": {"summary": "x", "confidence": 3.5},
		},
	}
	a, _ := newTestAdvisor(t, transport)

	resp, err := a.Advise(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Confidence)
}
