// Package safety validates proposed actions against a fixed allow-list
// and evidence-strength policy. The gate has no side effects: a
// recommendation is purely a function of the policy table and its inputs.
package safety

import (
	"fmt"
	"sort"
)

// Recommendation is one proposed action plus its validation outcome.
// Severity fields are copied from policy even when validation fails, so
// a reviewer can see the intended blast radius of a rejected action.
type Recommendation struct {
	ActionType            ActionType  `json:"action_type"`
	Target                string      `json:"target"`
	Reason                string      `json:"reason"`
	RiskReductionEstimate float64     `json:"risk_reduction_estimate"`
	Confidence            float64     `json:"confidence"`
	Priority              int         `json:"priority"`
	EvidenceRefs          []string    `json:"evidence_refs"`
	ApprovalRequired      bool        `json:"approval_required"`
	BlastRadius           BlastRadius `json:"blast_radius,omitempty"`
	ImpactLevel           ImpactLevel `json:"impact_level,omitempty"`
	IsValid               bool        `json:"is_valid"`
	ValidationErrors      []string    `json:"validation_errors,omitempty"`
}

// Gate holds the action policy table.
type Gate struct {
	policies map[ActionType]Policy
}

// NewGate creates a gate with the default policy table.
func NewGate() *Gate {
	return &Gate{policies: defaultPolicies}
}

// NewGateWithPolicies creates a gate with a custom table, for tests.
func NewGateWithPolicies(policies map[ActionType]Policy) *Gate {
	return &Gate{policies: policies}
}

// CreateRecommendation validates a proposed action. All applicable
// violations are collected; IsValid is true only when none apply.
func (g *Gate) CreateRecommendation(actionType ActionType, target, reason string, riskReduction, confidence float64, priority int, evidenceRefs []string) Recommendation {
	rec := Recommendation{
		ActionType:            actionType,
		Target:                target,
		Reason:                reason,
		RiskReductionEstimate: riskReduction,
		Confidence:            confidence,
		Priority:              priority,
		EvidenceRefs:          evidenceRefs,
	}

	policy, allowed := g.policies[actionType]
	if !allowed {
		rec.ValidationErrors = append(rec.ValidationErrors,
			fmt.Sprintf("action type %q is not allow-listed", actionType))
		return rec
	}

	rec.ApprovalRequired = policy.ApprovalRequired
	rec.BlastRadius = policy.BlastRadius
	rec.ImpactLevel = policy.ImpactLevel

	if len(evidenceRefs) < policy.MinEvidence {
		rec.ValidationErrors = append(rec.ValidationErrors,
			fmt.Sprintf("insufficient evidence: %d refs, policy requires %d", len(evidenceRefs), policy.MinEvidence))
	}
	if confidence < policy.MinConfidence {
		rec.ValidationErrors = append(rec.ValidationErrors,
			fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, policy.MinConfidence))
	}

	rec.IsValid = len(rec.ValidationErrors) == 0
	return rec
}

// AllowedActions returns the allow-listed action types, sorted.
func (g *Gate) AllowedActions() []ActionType {
	out := make([]ActionType, 0, len(g.policies))
	for at := range g.policies {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PolicyFor returns the policy for an action type, if allow-listed.
func (g *Gate) PolicyFor(actionType ActionType) (Policy, bool) {
	p, ok := g.policies[actionType]
	return p, ok
}
