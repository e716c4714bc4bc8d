// Package evidence assembles the event→finding→call traceability chain
// for a request.
package evidence

import (
	"github.com/google/uuid"
	"github.com/trustgate/trustgate/internal/ledger"
)

// Chain ties a triggering event and finding to the upstream calls made
// while handling them. Created once per request and read-only after.
type Chain struct {
	EventID       string   `json:"event_id,omitempty"`
	FindingID     string   `json:"finding_id,omitempty"`
	CallIDs       []string `json:"call_ids"`
	CorrelationID string   `json:"correlation_id"`
	ChainComplete bool     `json:"chain_complete"`
}

// Builder reads call ids from the ledger.
type Builder struct {
	ledger *ledger.Ledger
}

// NewBuilder creates a chain builder backed by the shared ledger.
func NewBuilder(l *ledger.Ledger) *Builder {
	return &Builder{ledger: l}
}

// Build assembles the chain for a request. Absent event_id or finding_id
// in the context is not an error, it just leaves the chain incomplete.
// ChainComplete is true iff both ids are present and at least one call
// was recorded for the request.
func (b *Builder) Build(context map[string]any, requestID string) Chain {
	chain := Chain{
		CorrelationID: uuid.New().String(),
		CallIDs:       []string{},
	}

	if v, ok := context["event_id"].(string); ok {
		chain.EventID = v
	}
	if v, ok := context["finding_id"].(string); ok {
		chain.FindingID = v
	}

	for _, r := range b.ledger.RecordsForRequest(requestID) {
		chain.CallIDs = append(chain.CallIDs, r.CallID)
	}

	chain.ChainComplete = chain.EventID != "" && chain.FindingID != "" && len(chain.CallIDs) > 0
	return chain
}
