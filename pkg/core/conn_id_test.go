package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithConnID(t *testing.T) {
	ctx := WithConnID(context.Background(), "conn-1")

	if got := ConnID(ctx); got != "conn-1" {
		t.Errorf("ConnID() = %q, want %q", got, "conn-1")
	}
}

func TestConnID_Missing(t *testing.T) {
	if got := ConnID(context.Background()); got != "" {
		t.Errorf("ConnID() = %q, want empty string", got)
	}
}

func TestNewConnID(t *testing.T) {
	id1 := NewConnID()
	id2 := NewConnID()

	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("NewConnID() = %q is not a uuid: %v", id1, err)
	}
	if id1 == id2 {
		t.Errorf("NewConnID() returned the same id twice: %q", id1)
	}
}
