package storage

import (
	"context"
	"testing"

	"github.com/richinex/contextloom/history"
)

func TestInMemoryStorageSaveAndLoad(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()
	record := testRecord()

	if err := storage.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	loaded, err := storage.LoadRecord(ctx, record.Key)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded == nil || len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", loaded)
	}
}

func TestInMemoryStorageLoadNonexistentRecord(t *testing.T) {
	storage := NewInMemoryStorage()

	loaded, err := storage.LoadRecord(context.Background(), history.Key{Provider: "none"})
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil, got %+v", loaded)
	}
}

func TestInMemoryStorageDeleteRecord(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()
	record := testRecord()

	if err := storage.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if err := storage.DeleteRecord(ctx, record.Key); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}

	keys, err := storage.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys after deletion, got %v", keys)
	}
}

func TestInMemoryStorageIsolation(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()
	record := testRecord()

	if err := storage.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	// Modify the original record
	record.Messages[0].Content = "Modified"

	loaded, err := storage.LoadRecord(ctx, record.Key)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded.Messages[0].Content != "Hello" {
		t.Errorf("expected 'Hello', got '%s' - storage should copy data", loaded.Messages[0].Content)
	}
}

func TestInMemoryStorageEmbeddingFingerprint(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	if err := storage.StoreEmbedding(ctx, "i", "fp-old", "m", []float32{1, 2}); err != nil {
		t.Fatalf("StoreEmbedding failed: %v", err)
	}
	if err := storage.StoreEmbedding(ctx, "i", "fp-new", "m", []float32{3, 4}); err != nil {
		t.Fatalf("StoreEmbedding failed: %v", err)
	}

	if _, ok, _ := storage.LoadEmbedding(ctx, "i", "fp-old", "m"); ok {
		t.Error("expected replaced fingerprint to miss")
	}
	got, ok, err := storage.LoadEmbedding(ctx, "i", "fp-new", "m")
	if err != nil || !ok {
		t.Fatalf("LoadEmbedding failed: ok=%v err=%v", ok, err)
	}
	if got[0] != 3 {
		t.Errorf("expected latest vector, got %v", got)
	}
}
