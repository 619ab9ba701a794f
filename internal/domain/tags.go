package domain

import (
	"slices"
	"strings"
)

// CacheTag is an invalidation key for one class of cached read views.
type CacheTag string

// OrgTag covers every list and count view of a kind in an organization.
func OrgTag(kind Kind, organizationID string) CacheTag {
	return CacheTag(string(kind) + ":org:" + organizationID)
}

// StatusTag covers views of a kind filtered to one status.
func StatusTag(kind Kind, organizationID string, status Status) CacheTag {
	return CacheTag(string(kind) + ":org:" + organizationID + ":status:" + string(status))
}

// ResourceTag covers the detail view and id-keyed counts of one resource.
func ResourceTag(kind Kind, id string) CacheTag {
	return CacheTag(string(kind) + ":" + id)
}

// DeriveTags computes the tags a mutation must invalidate. It always emits
// the organization namespace tag, one tag per affected status (callers pass
// both old and new statuses) and one tag per affected id. The result is
// deduplicated and sorted, so equal inputs give equal output.
func DeriveTags(kind Kind, organizationID string, affectedIDs []string, affectedStatuses []Status) []CacheTag {
	tags := make([]CacheTag, 0, 1+len(affectedStatuses)+len(affectedIDs))
	tags = append(tags, OrgTag(kind, organizationID))
	for _, s := range affectedStatuses {
		if s != "" {
			tags = append(tags, StatusTag(kind, organizationID, s))
		}
	}
	for _, id := range affectedIDs {
		if id != "" {
			tags = append(tags, ResourceTag(kind, id))
		}
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

// TagStrings converts tags for transports that carry plain strings.
func TagStrings(tags []CacheTag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// ParseTags is the inverse of TagStrings; blank entries are dropped.
func ParseTags(raw []string) []CacheTag {
	out := make([]CacheTag, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, CacheTag(s))
		}
	}
	return out
}
