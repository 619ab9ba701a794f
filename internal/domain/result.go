package domain

import (
	"fmt"
	"strings"
)

// Rejection records why one requested id was skipped.
type Rejection struct {
	ID     string
	Reason string
	Err    error
}

// MutationResult is what every mutation returns to its caller.
type MutationResult struct {
	Kind           Kind
	OrganizationID string
	Requested      int
	SucceededIDs   []string
	Rejected       []Rejection
	// Resources holds the succeeded rows as re-read after the write.
	Resources       []Resource
	InvalidatedTags []CacheTag
	// Note is an optional human-readable remark for no-op successes.
	Note string
}

// Outcome values reported to callers.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePartial = "partial"
)

// Outcome summarizes the result as success, partial or error.
func (r MutationResult) Outcome() string {
	switch {
	case len(r.Rejected) == 0:
		return OutcomeSuccess
	case len(r.SucceededIDs) == 0:
		return OutcomeError
	default:
		return OutcomePartial
	}
}

// Message renders "N of M updated" plus distinct skip reasons with counts,
// in order of first occurrence.
func (r MutationResult) Message() string {
	if r.Note != "" && len(r.Rejected) == 0 {
		return r.Note
	}
	msg := fmt.Sprintf("%d of %d updated", len(r.SucceededIDs), r.Requested)
	if len(r.Rejected) == 0 {
		return msg
	}

	counts := make(map[string]int)
	var order []string
	for _, rej := range r.Rejected {
		if counts[rej.Reason] == 0 {
			order = append(order, rej.Reason)
		}
		counts[rej.Reason]++
	}

	parts := make([]string, len(order))
	for i, reason := range order {
		parts[i] = fmt.Sprintf("%s (%d)", reason, counts[reason])
	}
	return msg + "; skipped: " + strings.Join(parts, ", ")
}
