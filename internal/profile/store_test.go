package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStoreRequiresConfig(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	if _, err := NewStore(Config{URL: "https://example.supabase.co"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestFetchReadsProfileRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/profiles") {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("email"); got != "eq.ada@example.com" {
			t.Errorf("email filter = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":       "Ada Lovelace",
			"email":      "ada@example.com",
			"experience": "senior",
			"skills":     []string{"go", "distributed systems"},
			"role":       "backend engineer",
			"category":   "technical",
		})
	}))
	defer srv.Close()

	store, err := NewStore(Config{URL: srv.URL, ServiceRoleKey: "service-role", Bucket: "interviews"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := store.Fetch(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Name != "Ada Lovelace" || p.Category != "technical" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Skills) != 2 {
		t.Fatalf("skills = %v", p.Skills)
	}
}
