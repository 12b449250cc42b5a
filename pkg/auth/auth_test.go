package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	tests := []struct {
		name    string
		subject Subject
	}{
		{"user", Subject{ID: "driver-1"}},
		{"admin", Subject{ID: "ops-7", Admin: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := issuer.Issue(tt.subject, time.Minute)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			got, err := issuer.Parse(token)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.subject {
				t.Errorf("expected %+v, got %+v", tt.subject, got)
			}
		})
	}
}

func TestTokenIssuer_RejectsBadTokens(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	other := NewTokenIssuer("other-secret")

	foreign, _ := other.Issue(Subject{ID: "driver-1"}, time.Minute)
	expired, _ := issuer.Issue(Subject{ID: "driver-1"}, -time.Minute)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestSubject_CanAct(t *testing.T) {
	owner := Subject{ID: "driver-1"}
	stranger := Subject{ID: "driver-2"}
	admin := Subject{ID: "ops", Admin: true}

	if !owner.CanAct("driver-1") {
		t.Error("owner must be able to act on own record")
	}
	if stranger.CanAct("driver-1") {
		t.Error("stranger must not act on someone else's record")
	}
	if !admin.CanAct("driver-1") {
		t.Error("admin may act on any record")
	}
	if (Subject{}).CanAct("") {
		t.Error("empty subject must never match an empty owner")
	}
}

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no subject on bare context")
	}

	ctx := WithSubject(context.Background(), Subject{ID: "driver-1"})
	s, ok := FromContext(ctx)
	if !ok || s.ID != "driver-1" {
		t.Errorf("expected driver-1, got %+v (ok=%v)", s, ok)
	}
}
