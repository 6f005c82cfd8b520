package knowledge

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/answerbot-ai/answerbot/internal/testutil"
)

// hashEmbedder produces deterministic 768-dim unit-ish vectors so vector
// search works without a real embedding model: identical texts embed
// identically, different texts land elsewhere.
type hashEmbedder struct{}

func (hashEmbedder) Name() string { return "test/hash-embedder" }

func (hashEmbedder) Register(api.Registry) {}

func (hashEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		text := ""
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		vec := make([]float32, 768)
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum32()
		for i := range vec {
			seed = seed*1664525 + 1013904223
			vec[i] = float32(seed%1000)/1000.0 - 0.5
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func TestStore_AddAndSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(tdb.Pool, hashEmbedder{}, testutil.DiscardLogger())
	ctx := context.Background()

	docs := []Document{
		{ID: "lists-1", Content: "Lists are ordered, mutable collections.", Metadata: map[string]string{"topic": "lists"}},
		{ID: "dicts-1", Content: "Dictionaries map keys to values.", Metadata: map[string]string{"topic": "dicts"}},
	}
	for _, doc := range docs {
		if err := store.Add(ctx, doc); err != nil {
			t.Fatalf("Add(%q) = %v", doc.ID, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	// An identical query embeds identically, so its document ranks first
	// with similarity 1.
	results, err := store.Search(ctx, "Lists are ordered, mutable collections.", 2)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Document.ID != "lists-1" {
		t.Errorf("top result = %q, want lists-1", results[0].Document.ID)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("top similarity = %f, want ~1.0 for identical text", results[0].Similarity)
	}
	if results[0].Document.Metadata["topic"] != "lists" {
		t.Errorf("metadata = %v, want topic=lists", results[0].Document.Metadata)
	}
}

func TestStore_AddUpsertsByID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(tdb.Pool, hashEmbedder{}, testutil.DiscardLogger())
	ctx := context.Background()

	if err := store.Add(ctx, Document{ID: "d1", Content: "original"}); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := store.Add(ctx, Document{ID: "d1", Content: "revised"}); err != nil {
		t.Fatalf("Add() upsert = %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d after upsert, want 1", count)
	}

	results, err := store.Search(ctx, "revised", 1)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(results) != 1 || results[0].Document.Content != "revised" {
		t.Errorf("Search() = %+v, want the revised content", results)
	}
}

func TestStore_DeleteMissingIsNoError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(tdb.Pool, hashEmbedder{}, testutil.DiscardLogger())
	if err := store.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete() missing id = %v, want nil", err)
	}
}
