package domain

import "strings"

// SynchronizedObjectID names one conference-scoped synchronized value:
// a kind tag plus an optional scope key narrowing the id to one instance
// within its kind (for example one room). The zero ScopeKey means the
// unscoped form, which subscribers may use as a wildcard for every scoped
// instance of the kind.
type SynchronizedObjectID struct {
	Kind     string
	ScopeKey string
}

// Well-known synchronized object kinds served by this process.
const (
	KindScenes = "scenes"
	KindRooms  = "rooms"
)

func NewSynchronizedObjectID(kind string) SynchronizedObjectID {
	return SynchronizedObjectID{Kind: kind}
}

func NewScopedSynchronizedObjectID(kind, scopeKey string) SynchronizedObjectID {
	return SynchronizedObjectID{Kind: kind, ScopeKey: scopeKey}
}

// String returns the stable key form: "kind" or "kind:scopeKey".
func (id SynchronizedObjectID) String() string {
	if id.ScopeKey == "" {
		return id.Kind
	}
	return id.Kind + ":" + id.ScopeKey
}

func (id SynchronizedObjectID) IsScoped() bool {
	return id.ScopeKey != ""
}

// ParseSynchronizedObjectID is the inverse of String.
func ParseSynchronizedObjectID(s string) SynchronizedObjectID {
	kind, scope, _ := strings.Cut(s, ":")
	return SynchronizedObjectID{Kind: kind, ScopeKey: scope}
}
