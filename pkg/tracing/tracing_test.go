package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestStartEnd(t *testing.T) {
	ctx, span := Start(context.Background(), "op")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	End(span, errors.New("boom"))
}
