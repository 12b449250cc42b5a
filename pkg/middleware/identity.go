package middleware

import (
	"net/http"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/sanitizer"
	"strings"
)

const (
	SubjectIDHeader   = "X-Subject-ID"
	SubjectRoleHeader = "X-Subject-Role"
)

// SubjectResolver turns request credentials into a subject.
type SubjectResolver interface {
	Resolve(r *http.Request) (auth.Subject, error)
}

type BearerResolver struct {
	Tokens *auth.TokenIssuer
}

func (b BearerResolver) Resolve(r *http.Request) (auth.Subject, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return auth.Subject{}, apperrors.Unauthenticated("missing bearer token")
	}
	subject, err := b.Tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return auth.Subject{}, apperrors.Unauthenticated("invalid bearer token")
	}
	return subject, nil
}

// HeaderResolver trusts identity headers set by an upstream gateway.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (auth.Subject, error) {
	id := sanitizer.SubjectID(r.Header.Get(SubjectIDHeader))
	if id == "" {
		return auth.Subject{}, apperrors.Unauthenticated("missing or malformed " + SubjectIDHeader + " header")
	}
	role := sanitizer.Role(r.Header.Get(SubjectRoleHeader))
	return auth.Subject{ID: id, Admin: role == auth.RoleAdmin}, nil
}

// Identity resolves the caller and stores it on the request context. Handlers
// read it back once and pass it on explicitly.
func Identity(resolver SubjectResolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := resolver.Resolve(r)
			if err != nil {
				log.Warn("Unauthenticated request",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				_ = httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), subject)))
		})
	}
}
