package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(Checker{Name: "never", Check: func(context.Context) error { return errors.New("down") }}).
		Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz_StoreAndUploadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := New(Store(pinger{}), WritableDir("uploads", dir))

	code, body := readyz(t, h, context.Background())
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("readyz = %d %+v", code, body)
	}
	if body.Checks["store"] != "ok" || body.Checks["uploads"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".readyz-*"))
	if len(matches) != 0 {
		t.Errorf("probe files left behind: %v", matches)
	}
}

func TestReadyz_Failures(t *testing.T) {
	t.Parallel()

	h := New(
		Store(pinger{err: errors.New("connection refused")}),
		WritableDir("uploads", filepath.Join(t.TempDir(), "missing")),
	)

	code, body := readyz(t, h, context.Background())
	if code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Fatalf("readyz = %d %+v", code, body)
	}
	if body.Checks["store"] != "fail: connection refused" {
		t.Errorf("store check = %q", body.Checks["store"])
	}
	if !strings.HasPrefix(body.Checks["uploads"], "fail: ") {
		t.Errorf("uploads check = %q", body.Checks["uploads"])
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()

	code, body := readyz(t, New(), context.Background())
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("readyz = %d %+v", code, body)
	}
}

func TestReadyz_ChecksRunInParallel(t *testing.T) {
	t.Parallel()

	slow := func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	h := New(
		Checker{Name: "a", Check: slow},
		Checker{Name: "b", Check: slow},
		Checker{Name: "c", Check: slow},
	)

	start := time.Now()
	code, _ := readyz(t, h, context.Background())
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 550*time.Millisecond {
		t.Errorf("readyz took %v, checks look sequential", elapsed)
	}
}

func TestReadyz_CanceledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Store(pinger{})).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
