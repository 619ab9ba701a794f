package domain

import "time"

// Resource is an organization-owned business entity with a lifecycle
// status. Domain-specific fields beyond the name live outside this engine.
type Resource struct {
	ID             string
	Kind           Kind
	OrganizationID string
	// ScopeKey groups siblings for the singleton flag: empty for
	// organization-wide kinds, the parent id for scoped kinds.
	ScopeKey  string
	Name      string
	Status    Status
	Flagged   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewResource creates a resource in its kind's initial status.
func NewResource(id string, spec KindSpec, organizationID, scopeKey, name string) Resource {
	now := time.Now().UTC()
	return Resource{
		ID:             id,
		Kind:           spec.Kind,
		OrganizationID: organizationID,
		ScopeKey:       scopeKey,
		Name:           name,
		Status:         spec.Initial,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Actor is the authenticated principal performing a mutation.
type Actor struct {
	ID   string
	Name string
}
