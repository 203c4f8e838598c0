package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/protocol"
	"github.com/fruitsalade/explorer/pkg/retry"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{BaseURL: ts.URL + "/", Timeout: 5 * time.Second})
	return c, ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestList(t *testing.T) {
	var gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fs" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotPath = r.URL.Query().Get("path")
		writeJSON(w, http.StatusOK, protocol.ListResponse{
			"/docs/": {Folders: []string{"sub"}, Files: []models.FileRecord{{Name: "a.md", Type: "markdown"}}},
		})
	}))
	defer ts.Close()

	snap, err := c.List(context.Background(), "docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotPath != "/docs/" {
		t.Errorf("query path = %q, want /docs/", gotPath)
	}
	entry := snap["/docs/"]
	if len(entry.Folders) != 1 || len(entry.Files) != 1 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Files[0].HasContent() {
		t.Error("listed files should carry no content")
	}
}

func TestListMissingEntry(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, protocol.ListResponse{})
	}))
	defer ts.Close()

	if _, err := c.List(context.Background(), "/x/"); err == nil {
		t.Fatal("expected error when the response lacks the requested path")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{http.StatusNotFound, backend.ErrNotFound, false},
		{http.StatusConflict, backend.ErrExists, false},
		{http.StatusServiceUnavailable, nil, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, protocol.ErrorResponse{Error: "nope", Code: tt.status})
			}))
			defer ts.Close()

			_, err := c.GetContent(context.Background(), "/", "a.txt")
			be, ok := backend.AsError(err)
			if !ok {
				t.Fatalf("err = %v, want *backend.Error", err)
			}
			if be.Kind != backend.KindContent || be.Path != "/a.txt" || be.Status != tt.status {
				t.Errorf("err = %+v", be)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v) = false", tt.sentinel)
			}
			if be.Retryable != tt.retryable {
				t.Errorf("Retryable = %v", be.Retryable)
			}
		})
	}
}

func TestAdapterDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := c.List(context.Background(), "/"); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}

	// A caller policy can retry.
	calls.Store(0)
	cfg := retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	_, err := retry.DoWithResult(context.Background(), cfg, func() (models.Snapshot, error) {
		return c.List(context.Background(), "/")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls with retry = %d, want 3", n)
	}
}

func TestTransportErrorMarksOffline(t *testing.T) {
	c, ts := testClient(http.NotFoundHandler())
	ts.Close()

	_, err := c.List(context.Background(), "/")
	be, ok := backend.AsError(err)
	if !ok || !be.Retryable {
		t.Fatalf("err = %v, want retryable *backend.Error", err)
	}
	if c.IsOnline() {
		t.Error("client should be offline after transport failure")
	}
}

func TestSaveDeleteCreate(t *testing.T) {
	var (
		save   protocol.SaveRequest
		del    protocol.DeleteRequest
		folder protocol.FolderRequest
		auth   string
	)
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/fs/file":
			json.NewDecoder(r.Body).Decode(&save)
			writeJSON(w, http.StatusOK, protocol.AckResponse{OK: true, File: &models.FileRecord{
				Name: "a.md", Type: "markdown", Size: "11 B", LastModified: "2025-01-02",
			}})
		case r.Method == http.MethodDelete && r.URL.Path == "/fs":
			json.NewDecoder(r.Body).Decode(&del)
			writeJSON(w, http.StatusOK, protocol.AckResponse{OK: true})
		case r.Method == http.MethodPost && r.URL.Path == "/fs/folder":
			json.NewDecoder(r.Body).Decode(&folder)
			writeJSON(w, http.StatusCreated, protocol.AckResponse{OK: true})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()
	c.SetAuthToken("tok")
	ctx := context.Background()

	rec, err := c.Save(ctx, "/docs/", "a.md", "hello world")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if save.Path != "/docs/a.md" || save.Content != "hello world" {
		t.Errorf("save request = %+v", save)
	}
	if rec.LastModified != "2025-01-02" || rec.Text() != "hello world" {
		t.Errorf("record = %+v", rec)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}

	if err := c.Delete(ctx, "/", "docs", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if del.Path != "/docs" || !del.IsFolder {
		t.Errorf("delete request = %+v", del)
	}

	if err := c.CreateFolder(ctx, "/docs/", "new"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if folder.Path != "/docs/" || folder.FolderName != "new" {
		t.Errorf("folder request = %+v", folder)
	}
}

func TestUploadReportsProgress(t *testing.T) {
	var gotPath, gotName, gotBody string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		gotPath = r.FormValue("path")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(b)
		writeJSON(w, http.StatusCreated, protocol.AckResponse{OK: true})
	}))
	defer ts.Close()

	payload := strings.Repeat("x", 256<<10)
	var steps []int
	rec, err := c.Upload(context.Background(), "/up/", backend.File{
		Name: "big.txt", Size: int64(len(payload)), Body: strings.NewReader(payload),
	}, func(p int) { steps = append(steps, p) })
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotPath != "/up/" || gotName != "big.txt" || gotBody != payload {
		t.Errorf("server got path=%q name=%q len=%d", gotPath, gotName, len(gotBody))
	}
	if len(steps) < 2 || steps[0] != 0 || steps[len(steps)-1] != 100 {
		t.Fatalf("steps = %v", steps)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] < steps[i-1] {
			t.Fatalf("progress decreased: %v", steps)
		}
	}
	if rec.Name != "big.txt" || rec.Size != "256 KiB" {
		t.Errorf("record = %+v", rec)
	}
}

func TestUploadTooLarge(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusRequestEntityTooLarge, protocol.ErrorResponse{Error: "too large", Code: 413})
	}))
	defer ts.Close()

	_, err := c.Upload(context.Background(), "/", backend.File{Name: "a.bin", Size: 3, Body: strings.NewReader("abc")}, nil)
	be, ok := backend.AsError(err)
	if !ok || be.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("err = %v", err)
	}
}

func TestDownload(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "/docs/a.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte{1, 2, 3})
	}))
	defer ts.Close()

	rc, err := c.Download(context.Background(), "/docs/", "a.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if len(b) != 3 {
		t.Errorf("body = %v", b)
	}
}

func TestLoginSetsToken(t *testing.T) {
	var lastAuth string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			writeJSON(w, http.StatusOK, protocol.LoginResponse{Token: "issued"})
		default:
			lastAuth = r.Header.Get("Authorization")
			writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
		}
	}))
	defer ts.Close()

	if _, err := c.Login(context.Background(), "admin", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if lastAuth != "Bearer issued" {
		t.Errorf("Authorization = %q", lastAuth)
	}
}

func TestSubscribe(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: modify\ndata: {\"type\":\"modify\",\"path\":\"/a.txt\",\"timestamp\":1}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := c.Subscribe(ctx)

	select {
	case ev := <-events:
		if ev.Type != protocol.EventModify || ev.Path != "/a.txt" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
