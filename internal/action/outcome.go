package action

import "time"

// Result is the named result of validating one request.
type Result uint8

const (
	Success Result = iota
	RequesterMissing
	CasterInvalidState
	TargetMissing
	TargetDead
	OutOfRange
	InsufficientResource
	OnCooldown
	OnGlobalCooldown
	NoLineOfSight
	Contended
	InvalidRequest
	ApplyFailed

	resultCount
)

var resultNames = [resultCount]string{
	Success:              "success",
	RequesterMissing:     "requester_missing",
	CasterInvalidState:   "caster_invalid_state",
	TargetMissing:        "target_missing",
	TargetDead:           "target_dead",
	OutOfRange:           "out_of_range",
	InsufficientResource: "insufficient_resource",
	OnCooldown:           "on_cooldown",
	OnGlobalCooldown:     "on_global_cooldown",
	NoLineOfSight:        "no_line_of_sight",
	Contended:            "contended",
	InvalidRequest:       "invalid_request",
	ApplyFailed:          "apply_failed",
}

func (r Result) String() string {
	if r < resultCount {
		return resultNames[r]
	}
	return "unknown"
}

// Results returns every result kind in declaration order.
func Results() []Result {
	out := make([]Result, 0, resultCount)
	for r := Success; r < resultCount; r++ {
		out = append(out, r)
	}
	return out
}

// State is the lifecycle state of a request: Enqueued → Validating → Applied | Rejected.
type State uint8

const (
	StateEnqueued State = iota
	StateValidating
	StateApplied
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateValidating:
		return "validating"
	case StateApplied:
		return "applied"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateRejected
}

// Outcome is the verdict on one request.
type Outcome struct {
	Request Request
	Result  Result
	Reason  string
	State   State

	// Set for successful casts: when the spell and the global cooldown expire.
	CooldownEnd time.Time
	GCDEnd      time.Time

	Tick uint64
}

// OK reports whether every check passed.
func (o Outcome) OK() bool {
	return o.Result == Success
}

func reject(req Request, tick uint64, result Result, reason string) Outcome {
	return Outcome{Request: req, Result: result, Reason: reason, State: StateRejected, Tick: tick}
}
