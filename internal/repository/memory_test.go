package repository

import (
	"context"
	"testing"

	"github.com/pwannenmacher/ConfReview/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := &models.Paper{ID: "p-1", Title: "T", Authors: []string{"a-1"}, State: models.PaperCreated}
	if err := store.Papers.Create(ctx, p); err != nil {
		t.Fatalf("Failed to create paper: %v", err)
	}

	// Mutating the caller's copy must not leak into the store
	p.Authors[0] = "intruder"

	got, err := store.Papers.GetByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("Failed to get paper: %v", err)
	}
	if got.Authors[0] != "a-1" {
		t.Errorf("Store shares memory with caller: authors=%v", got.Authors)
	}

	got.Authors = append(got.Authors, "a-2")
	again, _ := store.Papers.GetByID(ctx, "p-1")
	if len(again.Authors) != 1 {
		t.Errorf("Store shares memory with reader: authors=%v", again.Authors)
	}
}

func TestMemoryPaperDeleteRemovesReviews(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Papers.Create(ctx, &models.Paper{ID: "p-1", Title: "T", State: models.PaperSubmitted})
	_ = store.Reviews.Create(ctx, &models.Review{ID: "r-1", PaperID: "p-1", ReviewerID: "u-1"})

	if err := store.Papers.Delete(ctx, "p-1"); err != nil {
		t.Fatalf("Failed to delete paper: %v", err)
	}

	reviews, _ := store.Reviews.ListByPaper(ctx, "p-1")
	if len(reviews) != 0 {
		t.Errorf("Expected reviews to be removed with the paper, got %d", len(reviews))
	}
}
