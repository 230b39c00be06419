package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// openStores returns one of each Client implementation so every test runs
// against both backends.
func openStores(t *testing.T) map[string]Client {
	t.Helper()
	sqliteStore, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return map[string]Client{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestGetNotFound(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "clubs", "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := Document{"id": "c1", "name": "Morning Crew", "memberCount": float64(1)}
			if err := store.Set(ctx, "clubs", "c1", doc, false); err != nil {
				t.Fatalf("set: %v", err)
			}

			got, err := store.Get(ctx, "clubs", "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got["name"] != "Morning Crew" {
				t.Errorf("expected name 'Morning Crew', got %v", got["name"])
			}
		})
	}
}

func TestSetMergePreservesOtherFields(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "clubs", "c1", Document{"name": "Crew", "description": "hello"}, false); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Set(ctx, "clubs", "c1", Document{"name": "New Crew"}, true); err != nil {
				t.Fatalf("merge set: %v", err)
			}

			got, err := store.Get(ctx, "clubs", "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got["name"] != "New Crew" {
				t.Errorf("expected merged name, got %v", got["name"])
			}
			if got["description"] != "hello" {
				t.Errorf("expected description preserved, got %v", got["description"])
			}
		})
	}
}

func TestSetWithoutMergeReplaces(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "clubs", "c1", Document{"name": "Crew", "description": "hello"}, false); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Set(ctx, "clubs", "c1", Document{"name": "Replaced"}, false); err != nil {
				t.Fatalf("replace set: %v", err)
			}

			got, err := store.Get(ctx, "clubs", "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if _, ok := got["description"]; ok {
				t.Errorf("expected description dropped on replace, got %v", got["description"])
			}
		})
	}
}

func TestUpdateIncrementAndArrayUnion(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := Document{"memberCount": float64(1), "linkedRoundIds": []any{"r1"}}
			if err := store.Set(ctx, "clubs", "c1", doc, false); err != nil {
				t.Fatalf("set: %v", err)
			}

			err := store.Update(ctx, "clubs", "c1", Document{
				"memberCount":    Increment(3),
				"linkedRoundIds": ArrayUnion("r1", "r2"),
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := store.Get(ctx, "clubs", "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got["memberCount"] != float64(4) {
				t.Errorf("expected memberCount 4, got %v", got["memberCount"])
			}
			rounds, _ := got["linkedRoundIds"].([]any)
			if len(rounds) != 2 {
				t.Errorf("expected 2 linked rounds (r1 deduplicated), got %v", rounds)
			}
		})
	}
}

func TestUpdateIncrementMissingFieldStartsAtZero(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "clubs", "c1", Document{"name": "Crew"}, false); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Update(ctx, "clubs", "c1", Document{"memberCount": Increment(-1)}); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, _ := store.Get(ctx, "clubs", "c1")
			if got["memberCount"] != float64(-1) {
				t.Errorf("expected memberCount -1, got %v", got["memberCount"])
			}
		})
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Update(context.Background(), "clubs", "missing", Document{"memberCount": Increment(1)})
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRunQueryFilters(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			memberships := []Document{
				{"id": "c1_u1", "clubId": "c1", "userId": "u1", "isActive": true},
				{"id": "c1_u2", "clubId": "c1", "userId": "u2", "isActive": false},
				{"id": "c2_u1", "clubId": "c2", "userId": "u1", "isActive": true},
			}
			for _, m := range memberships {
				if err := store.Set(ctx, "clubMembers", m["id"].(string), m, false); err != nil {
					t.Fatalf("set: %v", err)
				}
			}

			docs, err := store.RunQuery(ctx, "clubMembers", Query{
				Filters: []Filter{{Field: "clubId", Value: "c1"}, {Field: "isActive", Value: true}},
			})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(docs) != 1 || docs[0]["id"] != "c1_u1" {
				t.Errorf("expected only c1_u1, got %v", docs)
			}
		})
	}
}

func TestRunQueryCursorPagination(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("c1_u%d", i)
				doc := Document{"id": id, "clubId": "c1", "isActive": true}
				if err := store.Set(ctx, "clubMembers", id, doc, false); err != nil {
					t.Fatalf("set: %v", err)
				}
			}

			q := Query{
				Filters: []Filter{{Field: "clubId", Value: "c1"}},
				OrderBy: "id",
				Limit:   2,
			}
			first, err := store.RunQuery(ctx, "clubMembers", q)
			if err != nil {
				t.Fatalf("first page: %v", err)
			}
			if len(first) != 2 || first[0]["id"] != "c1_u0" || first[1]["id"] != "c1_u1" {
				t.Fatalf("unexpected first page: %v", first)
			}

			q.StartAfter = first[1]["id"].(string)
			second, err := store.RunQuery(ctx, "clubMembers", q)
			if err != nil {
				t.Fatalf("second page: %v", err)
			}
			if len(second) != 2 || second[0]["id"] != "c1_u2" {
				t.Fatalf("unexpected second page: %v", second)
			}
		})
	}
}

func TestBatchWriteMergeUpsert(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "clubMembers", "c1_u1", Document{"id": "c1_u1", "isActive": false, "joinedVia": "manual"}, false); err != nil {
				t.Fatalf("seed: %v", err)
			}

			writes := []Write{
				{Collection: "clubMembers", ID: "c1_u1", Data: Document{"isActive": true, "joinedVia": "backfill"}, Merge: true},
				{Collection: "clubMembers", ID: "c1_u2", Data: Document{"id": "c1_u2", "isActive": true}, Merge: true},
			}
			if err := store.BatchWrite(ctx, writes); err != nil {
				t.Fatalf("batch write: %v", err)
			}

			got, err := store.Get(ctx, "clubMembers", "c1_u1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got["isActive"] != true || got["joinedVia"] != "backfill" {
				t.Errorf("expected merged upsert, got %v", got)
			}
			if _, err := store.Get(ctx, "clubMembers", "c1_u2"); err != nil {
				t.Errorf("expected c1_u2 created: %v", err)
			}
		})
	}
}

func TestBatchWriteRejectsOversizedBatch(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			writes := make([]Write, store.MaxBatchSize()+1)
			for i := range writes {
				writes[i] = Write{Collection: "clubMembers", ID: fmt.Sprintf("m%d", i), Data: Document{}}
			}
			err := store.BatchWrite(context.Background(), writes)
			if !errors.Is(err, ErrBatchTooLarge) {
				t.Errorf("expected ErrBatchTooLarge, got %v", err)
			}
		})
	}
}

func TestMemoryStoreCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doc := Document{"name": "Crew", "linkedRoundIds": []any{"r1"}}
	if err := store.Set(ctx, "clubs", "c1", doc, false); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Mutating the caller's document must not leak into the store.
	doc["name"] = "Mutated"
	got, _ := store.Get(ctx, "clubs", "c1")
	if got["name"] != "Crew" {
		t.Errorf("store aliased caller document: %v", got["name"])
	}

	// Mutating a read result must not leak either.
	got["name"] = "Mutated Again"
	again, _ := store.Get(ctx, "clubs", "c1")
	if again["name"] != "Crew" {
		t.Errorf("store aliased returned document: %v", again["name"])
	}
}
