package admission

import "time"

// Operation classifies a request by what it does to the platform, not by its
// route. Each operation class has its own independent budget.
type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpSearch     Operation = "search"
	OpView       Operation = "view"
	OpSuspicious Operation = "suspicious"
)

// RiskLevel classifies how likely an identity or IP is to be abusive, based
// on its recent history.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TrafficAction is the recommended treatment for an anonymous caller.
type TrafficAction string

const (
	ActionAllow     TrafficAction = "allow"
	ActionThrottle  TrafficAction = "throttle"
	ActionBlockTemp TrafficAction = "block_temporary"
	ActionBlockPerm TrafficAction = "block_permanent"
)

// Result is the outcome of a single admission check. A denial is a normal
// return value, not an error: it differs from an acceptance only in its
// payload.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, the unit
// HTTP callers put in a Retry-After header. Zero when the request was allowed.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	secs := int(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// WindowConfig is the immutable policy of one sliding window.
type WindowConfig struct {
	// Window is the trailing interval attempts are counted over.
	Window time.Duration
	// MaxAttempts is the number of attempts admitted per window.
	MaxAttempts int
	// KeyPrefix namespaces this window's keys so that windows sharing a
	// caller-supplied key never share budget.
	KeyPrefix string
	// SkipFailed removes an attempt from the window when it is later marked
	// failed, so failures do not consume capacity.
	SkipFailed bool
}

// ActionRecord is one behavioral event observed for an identity.
type ActionRecord struct {
	Operation Operation
	At        time.Time
	Failed    bool
	Reason    string
}

// Profile is the derived behavioral assessment of an identity. It is
// recomputed from the trailing hour of history on every Analyze call and is
// never stored.
type Profile struct {
	Risk           RiskLevel
	BotLike        bool
	Counts         map[Operation]int
	FailedAttempts int
	// RecommendedLimits are per-operation attempt budgets scaled down from
	// the tier defaults according to Risk and BotLike. They are advisory:
	// the engine surfaces them but does not silently replace tier capacity.
	RecommendedLimits map[Operation]int
}

// IPAssessment is the derived reputation of a source address.
type IPAssessment struct {
	Risk            RiskLevel
	RequestsPerHour int
	Action          TrafficAction
}
