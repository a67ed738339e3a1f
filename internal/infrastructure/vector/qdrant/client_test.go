package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var lastPoints []point
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			lastPoints = body.Points
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	docs := []domain.Document{{ID: "d1", Text: "a"}, {ID: "d2", Text: "b"}}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.Upsert(context.Background(), docs, vectors); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if err := client.Upsert(context.Background(), docs, vectors); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(lastPoints) != 2 || lastPoints[0].ID != PointID("d1") {
		t.Fatalf("expected deterministic point ids, got %+v", lastPoints)
	}
}

func TestUpsertRejectsVectorMismatch(t *testing.T) {
	client := New("http://127.0.0.1:1", "docs", nil)
	err := client.Upsert(context.Background(), []domain.Document{{ID: "d1", Text: "a"}}, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEnsureCollectionFailureIsStoreUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	err := client.Upsert(context.Background(), []domain.Document{{ID: "d1", Text: "a"}}, [][]float32{{0.1, 0.2}})
	if !domain.IsKind(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"doc_id":"d1","text":"Llama 2 ranges from 7B to 70B parameters.","metadata":{"source":"llama.md"},"seq":42}}
		]}`))
	}))
	defer server.Close()

	hits, err := New(server.URL, "docs", nil).Search(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	hit := hits[0]
	if hit.Document.ID != "d1" || hit.Seq != 42 || hit.Document.Metadata["source"] != "llama.md" {
		t.Fatalf("unexpected hit %+v", hit)
	}
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	hits, err := New(server.URL, "docs", nil).Search(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty hits, got %#v", hits)
	}
}
