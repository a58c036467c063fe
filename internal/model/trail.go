package model

import "time"

// Pipeline stages as they appear in an attempt trail.
const (
	TrailCache       = "cache"
	TrailClassify    = "classify"
	TrailContext     = "context"
	TrailDraft       = "draft"
	TrailReview      = "review"
	TrailPostprocess = "postprocess"
	TrailPolicy      = "policy"
	TrailAck         = "ack"
	TrailExecute     = "execute"
	TrailRuleRepair  = "repair_rule"
	TrailLLMRepair   = "repair_llm"
)

// Outcomes of a trail entry.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeFallback = "fallback"
)

// Fallback paths surfaced as fallback_stage.
const (
	FallbackReviewFailed = "review_failed"
	FallbackRuleRepair   = "rule_repair"
	FallbackLLMRepair    = "llm_repair"
)

// AttemptEntry is one decision taken while serving a request.
type AttemptEntry struct {
	Stage    string    `json:"stage"`
	Outcome  string    `json:"outcome"`
	Detail   string    `json:"detail,omitempty"`
	Fallback string    `json:"fallback,omitempty"`
	Counted  bool      `json:"counted"` // LLM calls and database executions
	At       time.Time `json:"at"`
}

// AttemptTrail is the append-only decision log of one request. It is not safe
// for concurrent use; a request owns its trail.
type AttemptTrail struct {
	entries  []AttemptEntry
	observer func(AttemptEntry)
}

// NewAttemptTrail creates a trail. observer, when non-nil, sees every entry as
// it is appended.
func NewAttemptTrail(observer func(AttemptEntry)) *AttemptTrail {
	return &AttemptTrail{observer: observer}
}

// Append records an entry.
func (t *AttemptTrail) Append(e AttemptEntry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	t.entries = append(t.entries, e)
	if t.observer != nil {
		t.observer(e)
	}
}

// Record is shorthand for an uncounted entry.
func (t *AttemptTrail) Record(stage, outcome, detail string) {
	t.Append(AttemptEntry{Stage: stage, Outcome: outcome, Detail: detail})
}

// Attempt is shorthand for an entry that counts toward attempt_count.
func (t *AttemptTrail) Attempt(stage, outcome, detail string) {
	t.Append(AttemptEntry{Stage: stage, Outcome: outcome, Detail: detail, Counted: true})
}

// Fallback records a fallback path being taken.
func (t *AttemptTrail) Fallback(stage, fallback, detail string) {
	t.Append(AttemptEntry{Stage: stage, Outcome: OutcomeFallback, Detail: detail, Fallback: fallback})
}

// Entries returns a copy of the recorded entries.
func (t *AttemptTrail) Entries() []AttemptEntry {
	out := make([]AttemptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// FallbackUsed reports whether any fallback path was taken.
func (t *AttemptTrail) FallbackUsed() bool {
	return t.FallbackStage() != ""
}

// FallbackStage returns the most recent fallback taken, or "".
func (t *AttemptTrail) FallbackStage() string {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Fallback != "" {
			return t.entries[i].Fallback
		}
	}
	return ""
}

// FailureReasons lists the details of failed entries in order.
func (t *AttemptTrail) FailureReasons() []string {
	reasons := []string{}
	for _, e := range t.entries {
		if e.Outcome == OutcomeFailed && e.Detail != "" {
			reasons = append(reasons, e.Stage+": "+e.Detail)
		}
	}
	return reasons
}

// AttemptCount is the number of LLM calls and executions made.
func (t *AttemptTrail) AttemptCount() int {
	n := 0
	for _, e := range t.entries {
		if e.Counted {
			n++
		}
	}
	return n
}
