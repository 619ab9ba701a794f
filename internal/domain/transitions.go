package domain

// GuardContext carries the extra state a guard needs. It is loaded by the
// caller before the guard runs so guards stay free of I/O.
type GuardContext struct {
	Resource Resource
	// Siblings is the number of other resources in the same organization
	// and scope whose status equals the rule's SiblingStatus.
	Siblings int
}

// Guard decides whether an enumerated transition is currently legal. It
// returns an empty string to allow, or a human-readable reason to deny.
type Guard func(GuardContext) string

// Transition defines a legal status change for a kind. Guard is optional.
type Transition struct {
	Kind  Kind
	Src   Status
	Dst   Status
	Guard Guard
	// SiblingStatus, when set, asks the caller to count siblings in this
	// status and pass the count in GuardContext.Siblings.
	SiblingStatus Status
}

// Transitions is the closed-world transition table. A (kind, src, dst)
// triple that is not listed here is denied.
var Transitions = []Transition{
	{Kind: KindClient, Src: ClientLead, Dst: ClientProspect},
	{Kind: KindClient, Src: ClientLead, Dst: ClientActive},
	{Kind: KindClient, Src: ClientLead, Dst: ClientArchived},
	{Kind: KindClient, Src: ClientProspect, Dst: ClientActive},
	{Kind: KindClient, Src: ClientProspect, Dst: ClientInactive},
	{Kind: KindClient, Src: ClientProspect, Dst: ClientArchived},
	{Kind: KindClient, Src: ClientActive, Dst: ClientInactive},
	{Kind: KindClient, Src: ClientActive, Dst: ClientArchived},
	{Kind: KindClient, Src: ClientInactive, Dst: ClientActive},
	{Kind: KindClient, Src: ClientInactive, Dst: ClientArchived},
	{Kind: KindClient, Src: ClientArchived, Dst: ClientActive},

	{Kind: KindProduct, Src: ProductDraft, Dst: ProductActive},
	{Kind: KindProduct, Src: ProductDraft, Dst: ProductArchived},
	{Kind: KindProduct, Src: ProductActive, Dst: ProductInactive},
	{Kind: KindProduct, Src: ProductActive, Dst: ProductDiscontinued},
	{Kind: KindProduct, Src: ProductActive, Dst: ProductArchived},
	{Kind: KindProduct, Src: ProductInactive, Dst: ProductActive},
	{Kind: KindProduct, Src: ProductInactive, Dst: ProductDiscontinued},
	{Kind: KindProduct, Src: ProductInactive, Dst: ProductArchived},
	{Kind: KindProduct, Src: ProductDiscontinued, Dst: ProductArchived},
	{Kind: KindProduct, Src: ProductArchived, Dst: ProductDraft},

	{Kind: KindSupplier, Src: SupplierActive, Dst: SupplierInactive},
	{Kind: KindSupplier, Src: SupplierActive, Dst: SupplierArchived},
	{Kind: KindSupplier, Src: SupplierInactive, Dst: SupplierActive},
	{Kind: KindSupplier, Src: SupplierInactive, Dst: SupplierArchived},
	{Kind: KindSupplier, Src: SupplierArchived, Dst: SupplierActive},

	{Kind: KindFiscalYear, Src: FiscalYearActive, Dst: FiscalYearClosed, Guard: guardCloseCurrentYear, SiblingStatus: FiscalYearActive},
	{Kind: KindFiscalYear, Src: FiscalYearActive, Dst: FiscalYearArchived, Guard: guardArchiveCurrentYear},
	{Kind: KindFiscalYear, Src: FiscalYearClosed, Dst: FiscalYearActive},
	{Kind: KindFiscalYear, Src: FiscalYearClosed, Dst: FiscalYearArchived},
	{Kind: KindFiscalYear, Src: FiscalYearArchived, Dst: FiscalYearClosed},

	{Kind: KindProductCategory, Src: CategoryActive, Dst: CategoryArchived},
	{Kind: KindProductCategory, Src: CategoryArchived, Dst: CategoryActive},

	{Kind: KindContact, Src: ContactActive, Dst: ContactArchived},
	{Kind: KindContact, Src: ContactArchived, Dst: ContactActive},

	{Kind: KindInvitation, Src: InvitationPending, Dst: InvitationAccepted},
	{Kind: KindInvitation, Src: InvitationPending, Dst: InvitationDeclined},
	{Kind: KindInvitation, Src: InvitationPending, Dst: InvitationRevoked},
	{Kind: KindInvitation, Src: InvitationPending, Dst: InvitationExpired},
}

// A current fiscal year may only be closed while another Active year exists
// to take over.
func guardCloseCurrentYear(gctx GuardContext) string {
	if gctx.Resource.Flagged && gctx.Siblings == 0 {
		return "cannot close the current fiscal year while no other active fiscal year exists"
	}
	return ""
}

func guardArchiveCurrentYear(gctx GuardContext) string {
	if gctx.Resource.Flagged {
		return "cannot archive the current fiscal year; set another fiscal year as current first"
	}
	return ""
}

// FindTransition returns the rule for (kind, src, dst), if enumerated.
func FindTransition(kind Kind, src, dst Status) (Transition, bool) {
	for _, t := range Transitions {
		if t.Kind == kind && t.Src == src && t.Dst == dst {
			return t, true
		}
	}
	return Transition{}, false
}

// Successors returns the enumerated legal targets for (kind, src).
func Successors(kind Kind, src Status) []Status {
	var out []Status
	for _, t := range Transitions {
		if t.Kind == kind && t.Src == src {
			out = append(out, t.Dst)
		}
	}
	return out
}
