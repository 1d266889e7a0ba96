// Package leads classifies synced conversations as effective leads. The
// criteria are deliberately policy configuration, not a contract: tune them
// per campaign instead of hard-coding the boolean combination.
package leads

import (
	"strings"

	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

// Policy lists the values that mark a conversation as an effective lead.
// A record qualifies when ANY of the checks matches.
type Policy struct {
	SuccessStatuses   []string // matched against status
	ApprovedValues    []string // matched against the approval field
	EvaluationResults []string // matched against the evaluation result
}

// DefaultPolicy matches the campaign defaults.
func DefaultPolicy() Policy {
	return Policy{
		SuccessStatuses:   []string{"success"},
		ApprovedValues:    []string{"true", "si", "sí", "yes"},
		EvaluationResults: []string{"successful"},
	}
}

type Classifier struct {
	policy Policy
}

func NewClassifier(policy Policy) *Classifier {
	return &Classifier{policy: policy}
}

// EffectiveLead reports whether the record qualifies under the policy.
// Nil fields never match.
func (c *Classifier) EffectiveLead(rec sync.ConversationRecord) bool {
	if matchesAny(rec.Status, c.policy.SuccessStatuses) {
		return true
	}
	if matchesAny(rec.Approved, c.policy.ApprovedValues) {
		return true
	}
	return matchesAny(rec.EvaluationResult, c.policy.EvaluationResults)
}

// Count tallies effective leads in a record set.
func (c *Classifier) Count(recs []sync.ConversationRecord) int {
	n := 0
	for _, rec := range recs {
		if c.EffectiveLead(rec) {
			n++
		}
	}
	return n
}

func matchesAny(value *string, candidates []string) bool {
	if value == nil {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(*value))
	for _, c := range candidates {
		if v == strings.ToLower(c) {
			return true
		}
	}
	return false
}
