package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_GetPath_Ready(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/paths/get/cam0" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "cam0", "ready": true, "readers": []any{}, "tracks": []string{"video"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", time.Second, nil)
	path, err := c.GetPath(context.Background(), "cam0")
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if !path.Ready || path.Name != "cam0" {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestClient_GetPath_AbsentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", time.Second, nil)
	path, err := c.GetPath(context.Background(), "cam9")
	if err != nil {
		t.Fatalf("expected no error for an absent path, got %v", err)
	}
	if path.Ready {
		t.Fatalf("expected an absent path to report not-ready, got %+v", path)
	}
}

func TestClient_ListPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/paths/list" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"name": "cam0", "ready": true, "readers": []any{}},
			{"name": "cam1", "ready": false, "readers": []any{}},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", time.Second, nil)
	paths, err := c.ListPaths(context.Background())
	if err != nil {
		t.Fatalf("ListPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
}

func TestClient_EnsurePath_ConflictIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", time.Second, nil)
	if err := c.EnsurePath(context.Background(), "cam0", KindPublisher, ""); err != nil {
		t.Fatalf("expected ensure_path to treat a conflict as already-provisioned, got %v", err)
	}
}

func TestClient_EnsurePath_RelayRequiresURL(t *testing.T) {
	c := New("http://127.0.0.1:1", "", "", time.Second, nil)
	if err := c.EnsurePath(context.Background(), "guest0", KindRelay, ""); err == nil {
		t.Fatal("expected an error when ensuring a relay path without a source URL")
	}
}

func TestClient_BasicAuthSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Fatalf("expected basic auth credentials, got ok=%v user=%q", ok, user)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "admin", "secret", time.Second, nil)
	if _, err := c.ListPaths(context.Background()); err != nil {
		t.Fatalf("ListPaths: %v", err)
	}
}
