// Package advisor runs the trust-enforcement pipeline for one advisory
// request: sanitize the input, gather platform context through the
// resilient client, gate proposed actions, assemble the evidence chain,
// and validate the response shape before it leaves the system.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trustgate/trustgate/internal/evidence"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/safety"
	"github.com/trustgate/trustgate/internal/sanitize"
	"github.com/trustgate/trustgate/internal/schema"
	"github.com/trustgate/trustgate/internal/upstream"
)

// ErrInvalidOutput is returned when the assembled response fails schema
// validation. The wrapped message carries every violation.
var ErrInvalidOutput = errors.New("response failed output validation")

// Upstream logical endpoints consumed by the pipeline.
const (
	endpointRiskFindings = "get_risk_findings"
	endpointMitigations  = "get_mitigation_guidance"
)

// responseDescriptor is the shape every outward response must satisfy.
var responseDescriptor = schema.Descriptor{
	Required:         []string{"summary", "confidence", "recommended_actions", "citations"},
	ConfidenceFields: []string{"confidence"},
	ListFields:       []string{"risk_factors", "recommended_actions", "evidence_chain", "citations"},
}

// Advisor composes the core components. One instance serves all
// requests; the ledger and breakers are the only shared mutable state.
type Advisor struct {
	sanitizer *sanitize.Sanitizer
	client    *upstream.Client
	gate      *safety.Gate
	chains    *evidence.Builder
	validator *schema.Validator
	ledger    *ledger.Ledger
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New wires an advisor from explicitly constructed dependencies.
func New(sanitizer *sanitize.Sanitizer, client *upstream.Client, gate *safety.Gate, chains *evidence.Builder, validator *schema.Validator, l *ledger.Ledger, logger *slog.Logger) *Advisor {
	return &Advisor{
		sanitizer: sanitizer,
		client:    client,
		gate:      gate,
		chains:    chains,
		validator: validator,
		ledger:    l,
		logger:    logger,
		tracer:    otel.Tracer("trustgate/advisor"),
	}
}

// Advise runs the full pipeline. It returns *UnsafeInputError before any
// upstream call when the sanitizer rejects the request, and
// ErrInvalidOutput when the assembled response violates the schema.
func (a *Advisor) Advise(ctx context.Context, req AdviseRequest) (*AdviseResponse, error) {
	start := time.Now()
	requestID := uuid.New().String()

	ctx, span := a.tracer.Start(ctx, "advise",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("tenant_id", req.TenantID),
		))
	defer span.End()

	cleanReq, err := a.sanitizeRequest(ctx, &req)
	if err != nil {
		return nil, err
	}

	findings, guidance, degraded, err := a.gatherContext(ctx, requestID, cleanReq)
	if err != nil {
		return nil, err
	}

	resp := &AdviseResponse{
		Summary:        stringField(findings, "summary"),
		RiskFactors:    stringList(findings, "risk_factors"),
		ImpactAnalysis: stringField(findings, "impact_analysis"),
		Confidence:     confidenceField(findings),
		Degraded:       degraded,
	}
	if resp.Summary == "" {
		resp.Summary = fmt.Sprintf("advisory for %s %s (severity %s)", cleanReq.Entity.Type, cleanReq.Entity.ID, cleanReq.Severity)
	}
	if resp.RiskFactors == nil {
		resp.RiskFactors = []string{}
	}

	resp.RecommendedActions = a.gateActions(guidance, requestID, cleanReq)

	chainCtx := map[string]any{"finding_id": cleanReq.FindingID}
	if v, ok := cleanReq.PolicyContext["event_id"]; ok {
		chainCtx["event_id"] = v
	}
	resp.EvidenceChain = []evidence.Chain{a.chains.Build(chainCtx, requestID)}

	resp.Citations = a.ledger.VerifiedCitations(requestID)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := a.validateOutput(resp); err != nil {
		return nil, err
	}

	a.logger.Info("advisory complete",
		"request_id", requestID,
		"finding_id", cleanReq.FindingID,
		"actions", len(resp.RecommendedActions),
		"citations", len(resp.Citations),
		"degraded", degraded,
		"duration_ms", resp.ProcessingTimeMs,
	)
	return resp, nil
}

// sanitizeRequest cleans the free-form parts of the request. Unsafe
// input stops the pipeline before any upstream call.
func (a *Advisor) sanitizeRequest(ctx context.Context, req *AdviseRequest) (*AdviseRequest, error) {
	ctx, span := a.tracer.Start(ctx, "sanitize")
	defer span.End()

	clean := *req
	var all []sanitize.Finding
	safe := true

	if req.PolicyContext != nil {
		cleanCtx, findings, ok := a.sanitizer.SanitizeContext(ctx, req.PolicyContext)
		clean.PolicyContext = cleanCtx
		all = append(all, findings...)
		safe = safe && ok
	}
	if req.Entity.Attributes != nil {
		cleanAttrs, findings, ok := a.sanitizer.SanitizeContext(ctx, req.Entity.Attributes)
		clean.Entity.Attributes = cleanAttrs
		all = append(all, findings...)
		safe = safe && ok
	}
	nameRes := a.sanitizer.SanitizeMessage(ctx, req.Entity.Name)
	clean.Entity.Name = nameRes.Clean
	all = append(all, nameRes.Findings...)
	safe = safe && nameRes.Safe

	if !safe {
		a.logger.Warn("request rejected by sanitizer", "findings", len(all))
		return nil, &UnsafeInputError{Findings: all}
	}
	return &clean, nil
}

// gatherContext makes the upstream calls. The findings call is
// essential; guidance failures degrade the response instead of failing
// the request.
func (a *Advisor) gatherContext(ctx context.Context, requestID string, req *AdviseRequest) (findings, guidance map[string]any, degraded bool, err error) {
	ctx, span := a.tracer.Start(ctx, "gather_context")
	defer span.End()

	findingsRes, err := a.client.Call(ctx, requestID, endpointRiskFindings, map[string]any{
		"tenant_id":   req.TenantID,
		"finding_id":  req.FindingID,
		"entity_type": req.Entity.Type,
		"entity_id":   req.Entity.ID,
		"severity":    req.Severity,
		"risk_score":  req.RiskScore,
	})
	if err != nil {
		return nil, nil, false, fmt.Errorf("gathering risk findings: %w", err)
	}
	degraded = findingsRes.Degraded

	guidanceRes, err := a.client.Call(ctx, requestID, endpointMitigations, map[string]any{
		"tenant_id":  req.TenantID,
		"finding_id": req.FindingID,
		"severity":   req.Severity,
	})
	if err != nil {
		// Recommendations become empty rather than failing the advisory.
		a.logger.Warn("mitigation guidance unavailable", "request_id", requestID, "error", err)
		return findingsRes.Payload, nil, true, nil
	}

	return findingsRes.Payload, guidanceRes.Payload, degraded || guidanceRes.Degraded, nil
}

// gateActions validates every action proposed by the platform. Evidence
// refs are the request's own ledger call ids plus refs carried on the
// proposal; rejected actions stay in the response with their errors.
func (a *Advisor) gateActions(guidance map[string]any, requestID string, req *AdviseRequest) []safety.Recommendation {
	recs := []safety.Recommendation{}
	if guidance == nil {
		return recs
	}
	proposals, ok := guidance["actions"].([]any)
	if !ok {
		return recs
	}

	var callIDs []string
	for _, r := range a.ledger.RecordsForRequest(requestID) {
		callIDs = append(callIDs, r.CallID)
	}

	for _, p := range proposals {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		refs := append([]string{}, callIDs...)
		refs = append(refs, stringList(m, "evidence_refs")...)

		rec := a.gate.CreateRecommendation(
			safety.ActionType(stringField(m, "action_type")),
			stringField(m, "target"),
			stringField(m, "reason"),
			floatField(m, "risk_reduction"),
			floatField(m, "confidence"),
			int(floatField(m, "priority")),
			refs,
		)
		if !rec.IsValid {
			a.logger.Warn("action rejected by safety gate",
				"request_id", requestID,
				"action_type", rec.ActionType,
				"errors", strings.Join(rec.ValidationErrors, "; "),
			)
		}
		recs = append(recs, rec)
	}
	return recs
}

// validateOutput checks the response against the output schema via its
// JSON shape, so the validator sees exactly what the caller will.
func (a *Advisor) validateOutput(resp *AdviseResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response for validation: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding response for validation: %w", err)
	}

	ok, violations := a.validator.Validate(m, responseDescriptor)
	if !ok {
		a.logger.Error("response failed output validation", "violations", strings.Join(violations, "; "))
		return fmt.Errorf("%w: %s", ErrInvalidOutput, strings.Join(violations, "; "))
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func stringList(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatField(m map[string]any, key string) float64 {
	switch t := m[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// confidenceField clamps the platform's confidence into [0,1], with a
// conservative default when absent.
func confidenceField(m map[string]any) float64 {
	if m == nil {
		return 0.5
	}
	if _, ok := m["confidence"]; !ok {
		return 0.5
	}
	c := floatField(m, "confidence")
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
