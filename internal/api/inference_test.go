package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/infernum/internal/backend/echo"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/model"
)

func TestInferenceRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	img := writeTestPNG(t, 4, 3)
	sr := scheduleInference(t, ts.URL, "describe", img)

	if sr.Status != "scheduled" {
		t.Errorf("status = %q, want %q", sr.Status, "scheduled")
	}
	if sr.ID == 0 {
		t.Error("id should be non-zero")
	}
	if sr.RecordID == "" {
		t.Error("record_id should be set")
	}

	rr := waitForResult(t, ts.URL)
	if rr.Status != "success" {
		t.Fatalf("status = %q, want success (message %q)", rr.Status, rr.Message)
	}
	got := rr.Response
	if got.ID != sr.ID {
		t.Errorf("id = %d, want %d", got.ID, sr.ID)
	}
	if got.RecordID != sr.RecordID {
		t.Errorf("record_id = %q, want %q", got.RecordID, sr.RecordID)
	}
	if got.Prompt != "describe" {
		t.Errorf("prompt = %q, want %q", got.Prompt, "describe")
	}
	if got.ImageSize.Width != 4 || got.ImageSize.Height != 3 {
		t.Errorf("image_size = %+v, want 4x3", got.ImageSize)
	}
	if got.StartTime <= 0 {
		t.Errorf("start_time = %d, want > 0", got.StartTime)
	}
	if got.Duration == "" {
		t.Error("duration should be set")
	}
	if !strings.Contains(got.Response, "4x3") {
		t.Errorf("response = %q, want it to mention 4x3", got.Response)
	}

	rec, err := srv.store.GetRecord(context.Background(), sr.RecordID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Status != model.StatusCompleted {
		t.Errorf("record status = %q, want %q", rec.Status, model.StatusCompleted)
	}
	if rec.Response != got.Response {
		t.Errorf("record response = %q, want %q", rec.Response, got.Response)
	}
	if rec.DurationMS == nil {
		t.Error("record duration_ms is nil")
	}

	// Single delivery: the next poll is empty.
	if rr := getResult(t, ts.URL); rr.Status == "success" || rr.Message != noResultMessage {
		t.Errorf("second poll = %+v, want no result", rr)
	}
}

func TestInferenceUnversionedRoutes(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"prompt":"hi","image_path":"` + writeTestPNG(t, 2, 2) + `"}`
	resp, err := http.Post(ts.URL+"/inference", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /inference: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/results")
		if err != nil {
			t.Fatalf("GET /results: %v", err)
		}
		var rr resultResponse
		err = json.NewDecoder(resp.Body).Decode(&rr)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rr.Status == "success" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for result on /results")
}

func TestInferenceBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	img := writeTestPNG(t, 2, 2)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"invalid json", `{"prompt":`, "invalid JSON body"},
		{"missing prompt", `{"image_path":"` + img + `"}`, "prompt is required"},
		{"blank prompt", `{"prompt":"  ","image_path":"` + img + `"}`, "prompt is required"},
		{"missing image", `{"prompt":"hi"}`, "image_path is required"},
		{"image not found", `{"prompt":"hi","image_path":"/nonexistent/cat.png"}`, "image not found"},
		{"unsupported format", `{"prompt":"hi","image_path":"/tmp/cat.gif"}`, "unsupported image format"},
		{"no extension", `{"prompt":"hi","image_path":"/tmp/cat"}`, "unsupported image format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/inference", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.Contains(body["error"], tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", body["error"], tt.wantMsg)
			}
		})
	}

	if srv.engine.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after rejected requests", srv.engine.Pending())
	}
}

func TestInferenceRejectedWhileBusy(t *testing.T) {
	srv := newTestServerWith(t, testServerConfig{
		model:    echo.New(300 * time.Millisecond),
		settings: Settings{Model: echo.Name, RejectWhenBusy: true},
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	img := writeTestPNG(t, 2, 2)
	scheduleInference(t, ts.URL, "first", img)

	resp := postInference(t, ts.URL, "second", img)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	rr := waitForResult(t, ts.URL)
	if rr.Status != "success" || rr.Response.Prompt != "first" {
		t.Errorf("result = %+v, want success for first", rr)
	}

	// Idle again, so the next request is accepted.
	waitForState(t, srv, engine.StateIdle)
	scheduleInference(t, ts.URL, "third", img)
}

func TestInferenceQueuesWhenRejectDisabled(t *testing.T) {
	srv := newTestServerWith(t, testServerConfig{
		model:    echo.New(20 * time.Millisecond),
		settings: Settings{Model: echo.Name},
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	img := writeTestPNG(t, 2, 2)
	prompts := []string{"one", "two", "three"}
	var ids []uint64
	for _, p := range prompts {
		ids = append(ids, scheduleInference(t, ts.URL, p, img).ID)
	}

	for i, p := range prompts {
		rr := waitForResult(t, ts.URL)
		if rr.Status != "success" {
			t.Fatalf("result %d status = %q, want success", i, rr.Status)
		}
		if rr.Response.ID != ids[i] || rr.Response.Prompt != p {
			t.Errorf("result %d = (%d, %q), want (%d, %q)", i, rr.Response.ID, rr.Response.Prompt, ids[i], p)
		}
	}
}

func TestInferenceQueueFull(t *testing.T) {
	srv := newTestServerWith(t, testServerConfig{
		model:         echo.New(300 * time.Millisecond),
		settings:      Settings{Model: echo.Name},
		queueCapacity: 1,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	img := writeTestPNG(t, 2, 2)
	scheduleInference(t, ts.URL, "running", img)
	waitForState(t, srv, engine.StateProcessing)
	scheduleInference(t, ts.URL, "queued", img)

	resp := postInference(t, ts.URL, "overflow", img)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestInferenceAfterEngineShutdown(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if err := srv.engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resp := postInference(t, ts.URL, "late", writeTestPNG(t, 2, 2))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	records, _, err := srv.store.ListRecords(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 || records[0].Status != model.StatusAbandoned {
		t.Errorf("records = %+v, want one abandoned record", records)
	}
}
