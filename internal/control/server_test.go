package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/arbiter"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
)

type fakeModeService struct{}

func (fakeModeService) Start(ctx context.Context) error { return nil }
func (fakeModeService) Stop(ctx context.Context) error  { return nil }

func TestServer_GetMode(t *testing.T) {
	s := testServerSimple(t)
	req := httptest.NewRequest(http.MethodGet, "/api/mode", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_PostMode_UnknownMode404(t *testing.T) {
	s := testServerSimple(t)
	req := httptest.NewRequest(http.MethodPost, "/api/mode/bogus", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServer_PostMode_SameModeIsNoOp(t *testing.T) {
	s := testServerSimple(t)
	req := httptest.NewRequest(http.MethodPost, "/api/mode/recorder", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_GetStatus(t *testing.T) {
	s := testServerSimple(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_UnknownCamera404(t *testing.T) {
	s := testServerSimple(t)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/start/cam9", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func testServerSimple(t *testing.T) *Server {
	t.Helper()
	logger := obs.NewLogger()
	bus := events.NewBus()
	statePath := filepath.Join(t.TempDir(), "mode_state.json")
	arb := arbiter.New(arbiter.ModeRecorder, statePath,
		map[arbiter.Mode]arbiter.Service{arbiter.ModeRecorder: fakeModeService{}, arbiter.ModePeerWebRTC: fakeModeService{}},
		nil, bus, nil, logger)

	return New(logger, nil, obs.NewHealthChecker("purser"), bus, arb, nil, nil, nil, nil, nil, 256, t.TempDir())
}
