package ledger

// Status is the terminal outcome of an upstream call.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusDegraded Status = "degraded" // served from cache after a live failure
)

// Record is one append-only ledger entry for a single upstream call.
// Once appended it is never mutated or deleted for the process lifetime.
type Record struct {
	CallID         string `json:"call_id"`
	RequestID      string `json:"request_id"`
	Endpoint       string `json:"endpoint"`
	ArgsDigest     string `json:"args_digest"`
	ResponseDigest string `json:"response_digest"`
	Status         Status `json:"status"`
	LatencyMs      int64  `json:"latency_ms"`
	Timestamp      string `json:"timestamp"`
}

// Citation is the externally-citable view of a Record. Citations in any
// outward response must come from Ledger.VerifiedCitations and nowhere else.
type Citation struct {
	CallID         string `json:"call_id"`
	Endpoint       string `json:"endpoint"`
	ArgsDigest     string `json:"args_digest"`
	ResponseDigest string `json:"response_digest"`
	Timestamp      string `json:"timestamp"`
	Status         Status `json:"status"`
}
