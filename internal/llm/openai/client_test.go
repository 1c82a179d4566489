package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

type fakeProvider struct {
	mu          sync.Mutex
	hits        map[string]int
	modelStatus int
	chatStatus  int
	answer      string
	lastChat    map[string]any
	uploadNames []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{hits: map[string]int{}, modelStatus: http.StatusOK, chatStatus: http.StatusOK, answer: `{"start_date":"2024-01-15"}`}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.Method+" "+r.URL.Path]++

	if r.Header.Get("Authorization") != "Bearer sk-test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.URL.Path {
	case "/models":
		w.WriteHeader(f.modelStatus)
		if f.modelStatus != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"gpt-4o-mini"}]}`)
	case "/files":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("purpose") != "user_data" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, fh, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.uploadNames = append(f.uploadNames, fh.Filename)
		_, _ = io.WriteString(w, `{"id":"file-abc123"}`)
	case "/chat/completions":
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.lastChat)
		if f.chatStatus != http.StatusOK {
			w.WriteHeader(f.chatStatus)
			_, _ = io.WriteString(w, `{"error":{"message":"The model is overloaded"}}`)
			return
		}
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": f.answer}}}}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeProvider) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeProvider) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hits)
}

func writeDoc(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("%PDF-1.4 fake"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestClient(url, key string) *Client {
	return NewClient(Config{APIKey: key, BaseURL: url, Model: "gpt-4o-mini"}, nil)
}

func TestExtractPDFUploadsThenChats(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	got, err := c.Extract(context.Background(), writeDoc(t, "lease.pdf"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != fp.answer {
		t.Errorf("Expected raw answer %q, got %q", fp.answer, got)
	}
	if fp.count("POST /files") != 1 || fp.uploadNames[0] != "lease.pdf" {
		t.Errorf("Expected one upload of lease.pdf, got %v", fp.uploadNames)
	}
	msgs := fp.lastChat["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	filePart := content[0].(map[string]any)
	if filePart["type"] != "file" {
		t.Errorf("Expected file part, got %v", filePart["type"])
	}
	if text := content[1].(map[string]any)["text"].(string); !strings.Contains(text, "tenancy agreement") {
		t.Errorf("Expected extraction prompt, got %q", text)
	}
}

func TestExtractImageIsInlined(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	if _, err := c.Extract(context.Background(), writeDoc(t, "scan.png")); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fp.count("POST /files") != 0 {
		t.Error("Expected no upload for images")
	}
	msgs := fp.lastChat["messages"].([]any)
	part := msgs[0].(map[string]any)["content"].([]any)[0].(map[string]any)
	url := part["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("Expected png data URL, got %.40s", url)
	}
}

func TestExtractUnsupportedFormatMakesNoCall(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	_, err := c.Extract(context.Background(), writeDoc(t, "notes.txt"))
	if !common.IsCode(err, common.CodeUnsupportedFormat) {
		t.Fatalf("Expected UNSUPPORTED_FORMAT, got %v", err)
	}
	if n := fp.total(); n != 0 {
		t.Errorf("Expected no network calls, got %v", fp.hits)
	}
}

func TestExtractWithoutKeyIsConfigurationError(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	_, err := c.Extract(context.Background(), writeDoc(t, "lease.pdf"))
	if !common.IsCode(err, common.CodeConfiguration) {
		t.Fatalf("Expected CONFIGURATION_ERROR, got %v", err)
	}
	if fp.total() != 0 {
		t.Errorf("Expected no network calls, got %v", fp.hits)
	}
}

func TestExtractRejectedKey(t *testing.T) {
	fp := newFakeProvider()
	fp.modelStatus = http.StatusUnauthorized
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	_, err := c.Extract(context.Background(), writeDoc(t, "lease.pdf"))
	if !common.IsCode(err, common.CodeConfiguration) {
		t.Fatalf("Expected CONFIGURATION_ERROR, got %v", err)
	}
	if !errors.Is(err, common.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication in chain, got %v", err)
	}
	if fp.count("POST /chat/completions") != 0 || fp.count("POST /files") != 0 {
		t.Error("Expected no document to be sent after a rejected key")
	}
}

func TestExtractProbeIsCached(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	for i := 0; i < 3; i++ {
		if _, err := c.Extract(context.Background(), writeDoc(t, "scan.jpg")); err != nil {
			t.Fatal(err)
		}
	}
	if n := fp.count("GET /models"); n != 1 {
		t.Errorf("Expected one probe, got %d", n)
	}
}

func TestExtractProviderFailureKeepsMessage(t *testing.T) {
	fp := newFakeProvider()
	fp.chatStatus = http.StatusServiceUnavailable
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c := newTestClient(srv.URL, "sk-test")
	_, err := c.Extract(context.Background(), writeDoc(t, "lease.pdf"))
	if !common.IsCode(err, common.CodeExtraction) {
		t.Fatalf("Expected EXTRACTION_FAILED, got %v", err)
	}
	if !strings.Contains(common.MessageOf(err), "The model is overloaded") {
		t.Errorf("Expected provider message, got %q", common.MessageOf(err))
	}
}
