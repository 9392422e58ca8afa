package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/backend/echo"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/store"
)

type testServerConfig struct {
	model         backend.Model
	settings      Settings
	queueCapacity int
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, testServerConfig{
		model:    echo.New(0),
		settings: Settings{Model: echo.Name, RejectWhenBusy: true},
	})
}

func newTestServerWith(t *testing.T, cfg testServerConfig) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := backend.NewRegistry()
	reg.Register(echo.Name, "deterministic image description", echo.Factory)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := backend.NewEngine(cfg.model,
		engine.WithLogger(logger),
		engine.WithQueueCapacity(cfg.queueCapacity),
	)
	t.Cleanup(func() { eng.Close() })

	return NewServer(":0", s, reg, eng, cfg.settings, logger)
}

// failingModel fails every request.
type failingModel struct{}

var errModelFailed = errors.New("model exploded")

func (failingModel) Run(backend.Request) (backend.Response, error) {
	return backend.Response{}, errModelFailed
}

// writeTestPNG writes a w x h PNG into a temp dir and returns its path.
func writeTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}

func postInference(t *testing.T, baseURL, prompt, imagePath string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(inferenceRequest{Prompt: prompt, ImagePath: imagePath})
	resp, err := http.Post(baseURL+"/v1/inference", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/inference: %v", err)
	}
	return resp
}

func scheduleInference(t *testing.T, baseURL, prompt, imagePath string) scheduledResponse {
	t.Helper()
	resp := postInference(t, baseURL, prompt, imagePath)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /v1/inference status = %d, body = %s", resp.StatusCode, b)
	}
	var sr scheduledResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode scheduled response: %v", err)
	}
	return sr
}

func getResult(t *testing.T, baseURL string) resultResponse {
	t.Helper()
	resp, err := http.Get(baseURL + "/v1/results")
	if err != nil {
		t.Fatalf("GET /v1/results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/results status = %d, want 200", resp.StatusCode)
	}
	var rr resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return rr
}

// waitForResult polls /v1/results until a response is delivered.
func waitForResult(t *testing.T, baseURL string) resultResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := getResult(t, baseURL)
		if rr.Status == "success" || rr.Status == "error" {
			return rr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for result")
	return resultResponse{}
}

func waitForState(t *testing.T, srv *Server, want engine.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.engine.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine never reached state %s", want)
}

func TestWelcome(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != welcomeMessage {
		t.Errorf("body = %q, want %q", body, welcomeMessage)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("GET /v1/models: %v", err)
	}
	defer resp.Body.Close()

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Active != echo.Name {
		t.Errorf("active = %q, want %q", body.Active, echo.Name)
	}
	if len(body.Models) != 1 || body.Models[0].Name != echo.Name {
		t.Errorf("models = %+v, want [echo]", body.Models)
	}
}
