package memory

import (
	"context"
	"errors"
	"testing"

	"pharmapos/backend/internal/kv"
)

func TestLoadMissingKey(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "pharma.db")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveCopiesValue(t *testing.T) {
	s := New()
	ctx := context.Background()

	payload := []byte(`{"medicines":[]}`)
	if err := s.Save(ctx, "pharma.db", payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	payload[0] = 'X'

	got, err := s.Load(ctx, "pharma.db")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"medicines":[]}` {
		t.Fatalf("stored value was aliased: %s", got)
	}

	got[0] = 'Y'
	again, _ := s.Load(ctx, "pharma.db")
	if again[0] != '{' {
		t.Fatalf("loaded value was aliased")
	}
}
