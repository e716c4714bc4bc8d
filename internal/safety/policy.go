package safety

// ActionType is an allow-listed action an advisor may propose. Anything
// outside this set is rejected at validation time.
type ActionType string

const (
	ActionInvestigate       ActionType = "investigate"
	ActionMonitor           ActionType = "monitor"
	ActionAlert             ActionType = "alert"
	ActionRateLimit         ActionType = "rate_limit"
	ActionRequireMFA        ActionType = "require_mfa"
	ActionIsolateEntity     ActionType = "isolate_entity"
	ActionShutdownService   ActionType = "shutdown_service"
	ActionEmergencyLockdown ActionType = "emergency_lockdown"
)

// BlastRadius is the scope of systems an action could affect if executed.
type BlastRadius string

const (
	BlastEntityOnly BlastRadius = "entity_only"
	BlastSegment    BlastRadius = "segment"
	BlastOrgWide    BlastRadius = "org_wide"
)

// ImpactLevel grades the severity of executing an action.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// Policy is the evidence-strength requirement for one action type.
type Policy struct {
	MinEvidence      int
	MinConfidence    float64
	ApprovalRequired bool
	BlastRadius      BlastRadius
	ImpactLevel      ImpactLevel
}

// defaultPolicies is the fixed policy table. Low-impact observation
// actions need a single evidence reference; disruptive actions climb to
// five references and near-certain confidence.
var defaultPolicies = map[ActionType]Policy{
	ActionInvestigate: {
		MinEvidence:   1,
		MinConfidence: 0.5,
		BlastRadius:   BlastEntityOnly,
		ImpactLevel:   ImpactLow,
	},
	ActionMonitor: {
		MinEvidence:   1,
		MinConfidence: 0.5,
		BlastRadius:   BlastEntityOnly,
		ImpactLevel:   ImpactLow,
	},
	ActionAlert: {
		MinEvidence:   1,
		MinConfidence: 0.5,
		BlastRadius:   BlastEntityOnly,
		ImpactLevel:   ImpactLow,
	},
	ActionRateLimit: {
		MinEvidence:   2,
		MinConfidence: 0.7,
		BlastRadius:   BlastSegment,
		ImpactLevel:   ImpactMedium,
	},
	ActionRequireMFA: {
		MinEvidence:   3,
		MinConfidence: 0.75,
		BlastRadius:   BlastSegment,
		ImpactLevel:   ImpactMedium,
	},
	ActionIsolateEntity: {
		MinEvidence:      3,
		MinConfidence:    0.85,
		ApprovalRequired: true,
		BlastRadius:      BlastEntityOnly,
		ImpactLevel:      ImpactHigh,
	},
	ActionShutdownService: {
		MinEvidence:      5,
		MinConfidence:    0.95,
		ApprovalRequired: true,
		BlastRadius:      BlastSegment,
		ImpactLevel:      ImpactCritical,
	},
	ActionEmergencyLockdown: {
		MinEvidence:      5,
		MinConfidence:    0.95,
		ApprovalRequired: true,
		BlastRadius:      BlastOrgWide,
		ImpactLevel:      ImpactCritical,
	},
}
