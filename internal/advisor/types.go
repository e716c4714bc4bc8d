package advisor

import (
	"fmt"

	"github.com/trustgate/trustgate/internal/evidence"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/safety"
	"github.com/trustgate/trustgate/internal/sanitize"
)

// Entity is the subject of an advisory request.
type Entity struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AdviseRequest is the inbound advisory request, already parsed from the
// wire by the handler.
type AdviseRequest struct {
	FindingID     string         `json:"finding_id"`
	TenantID      string         `json:"tenant_id"`
	Entity        Entity         `json:"entity"`
	Severity      string         `json:"severity"`
	RiskScore     float64        `json:"risk_score"`
	EvidenceRefs  []string       `json:"evidence_refs,omitempty"`
	PolicyContext map[string]any `json:"policy_context,omitempty"`
}

// AdviseResponse is the structured verdict returned to the handler.
// Citations come exclusively from the call ledger.
type AdviseResponse struct {
	Summary            string                  `json:"summary"`
	RiskFactors        []string                `json:"risk_factors"`
	ImpactAnalysis     string                  `json:"impact_analysis"`
	RecommendedActions []safety.Recommendation `json:"recommended_actions"`
	EvidenceChain      []evidence.Chain        `json:"evidence_chain"`
	Confidence         float64                 `json:"confidence"`
	Citations          []ledger.Citation       `json:"citations"`
	ProcessingTimeMs   int64                   `json:"processing_time_ms"`
	Degraded           bool                    `json:"degraded,omitempty"`
}

// UnsafeInputError is returned when the sanitizer rejects a request
// before any upstream call is made.
type UnsafeInputError struct {
	Findings []sanitize.Finding
}

func (e *UnsafeInputError) Error() string {
	return fmt.Sprintf("unsafe input rejected: %d findings", len(e.Findings))
}
