package domain

import "slices"

// Kind identifies the entity family a mutation targets.
type Kind string

const (
	KindClient          Kind = "client"
	KindProduct         Kind = "product"
	KindSupplier        Kind = "supplier"
	KindFiscalYear      Kind = "fiscalyear"
	KindProductCategory Kind = "productcategory"
	KindContact         Kind = "contact"
	KindInvitation      Kind = "invitation"
)

// Status is a lifecycle state. Its meaning is only defined together with a
// Kind: "Active" for a client and "Active" for a fiscal year belong to
// different state machines.
type Status string

// Client statuses.
const (
	ClientLead     Status = "Lead"
	ClientProspect Status = "Prospect"
	ClientActive   Status = "Active"
	ClientInactive Status = "Inactive"
	ClientArchived Status = "Archived"
)

// Product statuses.
const (
	ProductDraft        Status = "Draft"
	ProductActive       Status = "Active"
	ProductInactive     Status = "Inactive"
	ProductDiscontinued Status = "Discontinued"
	ProductArchived     Status = "Archived"
)

// Supplier statuses.
const (
	SupplierActive   Status = "Active"
	SupplierInactive Status = "Inactive"
	SupplierArchived Status = "Archived"
)

// Fiscal year statuses.
const (
	FiscalYearActive   Status = "Active"
	FiscalYearClosed   Status = "Closed"
	FiscalYearArchived Status = "Archived"
)

// Product category statuses.
const (
	CategoryActive   Status = "Active"
	CategoryArchived Status = "Archived"
)

// Contact statuses.
const (
	ContactActive   Status = "Active"
	ContactArchived Status = "Archived"
)

// Invitation statuses.
const (
	InvitationPending  Status = "Pending"
	InvitationAccepted Status = "Accepted"
	InvitationDeclined Status = "Declined"
	InvitationRevoked  Status = "Revoked"
	InvitationExpired  Status = "Expired"
)

// FlagSpec describes the singleton flag a kind carries.
type FlagSpec struct {
	// Name is the attribute name exposed to callers (is_current, is_default).
	Name string
	// Eligible lists the statuses a resource must be in to hold the flag.
	Eligible []Status
}

// KindSpec is the static configuration of one resource kind.
type KindSpec struct {
	Kind     Kind
	Statuses []Status
	Initial  Status
	// Scoped kinds belong to a parent resource (a contact's client or
	// supplier); the parent id is the resource's ScopeKey.
	Scoped bool
	Flag   *FlagSpec
}

// Kinds is the registry of every resource kind the engine manages.
var Kinds = map[Kind]KindSpec{
	KindClient: {
		Kind:     KindClient,
		Statuses: []Status{ClientLead, ClientProspect, ClientActive, ClientInactive, ClientArchived},
		Initial:  ClientLead,
	},
	KindProduct: {
		Kind:     KindProduct,
		Statuses: []Status{ProductDraft, ProductActive, ProductInactive, ProductDiscontinued, ProductArchived},
		Initial:  ProductDraft,
	},
	KindSupplier: {
		Kind:     KindSupplier,
		Statuses: []Status{SupplierActive, SupplierInactive, SupplierArchived},
		Initial:  SupplierActive,
	},
	KindFiscalYear: {
		Kind:     KindFiscalYear,
		Statuses: []Status{FiscalYearActive, FiscalYearClosed, FiscalYearArchived},
		Initial:  FiscalYearActive,
		Flag:     &FlagSpec{Name: "is_current", Eligible: []Status{FiscalYearActive}},
	},
	KindProductCategory: {
		Kind:     KindProductCategory,
		Statuses: []Status{CategoryActive, CategoryArchived},
		Initial:  CategoryActive,
	},
	KindContact: {
		Kind:     KindContact,
		Statuses: []Status{ContactActive, ContactArchived},
		Initial:  ContactActive,
		Scoped:   true,
		Flag:     &FlagSpec{Name: "is_default", Eligible: []Status{ContactActive}},
	},
	KindInvitation: {
		Kind:     KindInvitation,
		Statuses: []Status{InvitationPending, InvitationAccepted, InvitationDeclined, InvitationRevoked, InvitationExpired},
		Initial:  InvitationPending,
	},
}

// AllKinds returns every registered kind in a stable order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(Kinds))
	for k := range Kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Lookup returns the spec for a kind.
func Lookup(kind Kind) (KindSpec, bool) {
	spec, ok := Kinds[kind]
	return spec, ok
}

// HasStatus reports whether status belongs to the kind's closed status set.
func (s KindSpec) HasStatus(status Status) bool {
	return slices.Contains(s.Statuses, status)
}

// FlagEligible reports whether a resource in the given status may hold the
// kind's singleton flag.
func (s KindSpec) FlagEligible(status Status) bool {
	return s.Flag != nil && slices.Contains(s.Flag.Eligible, status)
}
