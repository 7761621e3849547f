package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/midi"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
)

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	mockDetector := detector.NewMockDetector()
	mockDetector.SetHands([]detector.HandLandmarks{detector.FistLandmarks()})
	sink := midi.NewRecorder()
	m := metrics.New()

	cfg := controller.DefaultConfig()
	cfg.MappingInterval = 50 * time.Millisecond

	application, err := app.New(app.Config{Controller: cfg, FPS: 30}, app.Deps{
		Camera:   capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		Detector: mockDetector,
		Sink:     sink,
		Store:    s,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer application.Stop()

	srv := server.New(server.Config{
		Store:      s,
		Controller: application.Controller(),
		Hub:        application.Hub(),
		Metrics:    m,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	do := func(t *testing.T, method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest() error = %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s error = %v", method, path, err)
		}
		return resp
	}

	t.Run("Streaming", func(t *testing.T) {
		waitFor(t, func() bool {
			for _, slot := range control.All() {
				if sink.Count(slot.CC()) == 0 {
					return false
				}
			}
			return true
		})
	})

	t.Run("PreviewStream", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("GET /api/stream error = %v", err)
		}
		defer resp.Body.Close()

		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream error = %v", err)
		}
		if strings.TrimSpace(line) != "--frame" {
			t.Errorf("first line = %q, want --frame", line)
		}
	})

	t.Run("Mapping", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/mapping", "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("enter status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		resp = do(t, http.MethodPut, "/api/mapping/slot", `{"slot":"Ring"}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("select status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		sink.Reset()
		waitFor(t, func() bool { return sink.Count(control.Ring.CC()) >= 2 })

		for _, ev := range sink.Events() {
			if ev.Control != control.Ring.CC() || ev.Value != controller.DefaultTestValue {
				t.Errorf("unexpected event while mapping: %v", ev)
			}
		}

		resp = do(t, http.MethodDelete, "/api/mapping", "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("exit status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		// Streaming resumes with all five slots.
		sink.Reset()
		waitFor(t, func() bool { return sink.Count(control.Index.CC()) > 0 && sink.Count(control.Depth.CC()) > 0 })
	})

	t.Run("SessionLogged", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/api/sessions", "")
		defer resp.Body.Close()

		var listed struct {
			Sessions []store.Session `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if len(listed.Sessions) != 1 {
			t.Fatalf("got %d sessions, want 1", len(listed.Sessions))
		}
		if listed.Sessions[0].LastSlot != control.Ring || listed.Sessions[0].Open() {
			t.Errorf("session = %+v, want closed session ending on Ring", listed.Sessions[0])
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
