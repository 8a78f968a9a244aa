package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) statusBody {
	t.Helper()
	var body statusBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func hit(h *Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	if path == "/healthz" {
		h.Healthz(rec, req)
	} else {
		h.Readyz(rec, req)
	}
	return rec
}

func passing(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	rec := hit(New(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeBody(t, rec); body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
}

func TestReadyz_AllDependenciesHealthy(t *testing.T) {
	t.Parallel()

	rec := hit(New(passing("discord_gateway"), passing("voice_link")), "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
	for _, name := range []string{"discord_gateway", "voice_link"} {
		if body.Checks[name] != "ok" {
			t.Errorf("check %q = %q, want ok", name, body.Checks[name])
		}
	}
}

func TestReadyz_OneFailureTurnsUnavailable(t *testing.T) {
	t.Parallel()

	rec := hit(New(
		failing("discord_gateway", "gateway heartbeat stalled"),
		passing("voice_link"),
	), "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeBody(t, rec)
	if body.Status != "fail" {
		t.Errorf("body status = %q, want fail", body.Status)
	}
	if got := body.Checks["discord_gateway"]; got != "fail: gateway heartbeat stalled" {
		t.Errorf("gateway check = %q", got)
	}
	if got := body.Checks["voice_link"]; got != "ok" {
		t.Errorf("voice_link check = %q, want ok", got)
	}
}

func TestReadyz_NoCheckersIsReady(t *testing.T) {
	t.Parallel()

	rec := hit(New(), "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeBody(t, rec); body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
}

func TestReadyz_ReportsEveryFailure(t *testing.T) {
	t.Parallel()

	rec := hit(New(
		failing("discord_gateway", "timeout"),
		failing("stt", "model not loaded"),
	), "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeBody(t, rec)
	if got := body.Checks["discord_gateway"]; got != "fail: timeout" {
		t.Errorf("gateway check = %q", got)
	}
	if got := body.Checks["stt"]; got != "fail: model not loaded" {
		t.Errorf("stt check = %q", got)
	}
}

func TestRegister_MountsHealthRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(passing("voice_link")).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestReadyz_CancelledRequestFailsChecks(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
