package auth

import "context"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Subject is the authenticated caller of a request. It is resolved once at
// the edge and passed explicitly to every service and ledger call.
type Subject struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

func (s Subject) Empty() bool {
	return s.ID == ""
}

// CanAct reports whether s may act on a record owned by ownerID.
func (s Subject) CanAct(ownerID string) bool {
	return s.Admin || (s.ID != "" && s.ID == ownerID)
}

func (s Subject) Role() string {
	if s.Admin {
		return RoleAdmin
	}
	return RoleUser
}

type contextKey struct{}

func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(contextKey{}).(Subject)
	if !ok || s.Empty() {
		return Subject{}, false
	}
	return s, true
}
