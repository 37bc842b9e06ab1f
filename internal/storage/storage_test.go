package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeRepo is a minimal Repository used to exercise the factory.
type fakeRepo struct{ cfg Config }

func (f *fakeRepo) Begin(context.Context) error { return nil }
func (f *fakeRepo) CopyFrom(_ context.Context, _ []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) Commit(context.Context) error { return nil }
func (f *fakeRepo) Close()                       {}

func TestRegisterAndNew(t *testing.T) {
	Register("fake", func(_ context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{cfg: cfg}, nil
	})

	repo, err := New(context.Background(), Config{
		Kind:    "fake",
		Table:   "t",
		Columns: []string{"a"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := repo.(*fakeRepo); !ok {
		t.Fatalf("repo type = %T, want *fakeRepo", repo)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "nope", Table: "t", Columns: []string{"a"}})
	if err == nil {
		t.Fatal("New succeeded for unknown kind")
	}
}

func TestNew_RequiresTableAndColumns(t *testing.T) {
	Register("fake2", func(_ context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{cfg: cfg}, nil
	})
	if _, err := New(context.Background(), Config{Kind: "fake2", Columns: []string{"a"}}); err == nil {
		t.Fatal("New accepted empty table")
	}
	if _, err := New(context.Background(), Config{Kind: "fake2", Table: "t"}); err == nil {
		t.Fatal("New accepted empty column set")
	}
}

func TestErrorClassificationHelpers(t *testing.T) {
	base := errors.New("boom")

	mm := fmt.Errorf("copy: %w", &SchemaMismatchError{Err: base})
	if !IsSchemaMismatch(mm) {
		t.Fatal("wrapped SchemaMismatchError not detected")
	}
	if IsTransient(mm) {
		t.Fatal("mismatch reported as transient")
	}

	tr := fmt.Errorf("copy: %w", &TransientError{Err: base})
	if !IsTransient(tr) {
		t.Fatal("wrapped TransientError not detected")
	}
	if !errors.Is(tr, base) {
		t.Fatal("Unwrap chain broken")
	}

	if IsSchemaMismatch(base) || IsTransient(base) {
		t.Fatal("plain error misclassified")
	}
}
