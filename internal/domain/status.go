package domain

import "strings"

// Status is the lifecycle state of a Reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusClaimed   Status = "claimed"
	StatusRejected  Status = "rejected"
)

// AllStatuses lists every reservation status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusPreparing,
	StatusReady,
	StatusClaimed,
	StatusRejected,
}

// reservationTransitions is the complete transition table. Anything not listed is invalid.
var reservationTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPreparing, StatusRejected},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusClaimed},
	StatusClaimed:   nil,
	StatusRejected:  nil,
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(reservationTransitions[s]) == 0
}

// CanTransition reports whether the table allows from -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range reservationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	next := reservationTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ReleasesResources reports whether entering s hands stock and money back.
func (s Status) ReleasesResources() bool {
	return s == StatusRejected
}

// ParseStatus accepts only the canonical lowercase spelling.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", NewError(ErrCodeInvalidInput, "unknown reservation status %q", s)
	}
	return st, nil
}

// TopupStatus is the lifecycle state of a Topup.
type TopupStatus string

const (
	TopupPending  TopupStatus = "pending"
	TopupApproved TopupStatus = "approved"
	TopupRejected TopupStatus = "rejected"
)

func (s TopupStatus) String() string { return string(s) }

// Valid reports whether s is one of the declared topup statuses.
func (s TopupStatus) Valid() bool {
	switch s {
	case TopupPending, TopupApproved, TopupRejected:
		return true
	}
	return false
}

// IsOutcome reports whether s is a decision an admin can make.
func (s TopupStatus) IsOutcome() bool {
	return s == TopupApproved || s == TopupRejected
}

// ParseTopupOutcome parses an admin decision.
func ParseTopupOutcome(s string) (TopupStatus, error) {
	st := TopupStatus(s)
	if !st.IsOutcome() {
		return "", NewError(ErrCodeInvalidInput, "unknown topup outcome %q", s)
	}
	return st, nil
}

// Provider is the e-wallet a topup was paid through.
type Provider string

const (
	ProviderGCash Provider = "gcash"
	ProviderMaya  Provider = "maya"
)

// ParseProvider accepts any letter case ("GCash", "maya") and returns the
// canonical lowercase value.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGCash, ProviderMaya:
		return p, nil
	}
	return "", NewError(ErrCodeInvalidInput, "unknown provider %q", s)
}

// Category is a menu section.
type Category string

const (
	CategoryMeals     Category = "meals"
	CategorySnacks    Category = "snacks"
	CategoryBeverages Category = "beverages"
)

// ParseCategory accepts only the canonical lowercase spelling.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryMeals, CategorySnacks, CategoryBeverages:
		return c, nil
	}
	return "", NewError(ErrCodeInvalidInput, "unknown category %q", s)
}
