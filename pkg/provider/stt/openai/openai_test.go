package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/talk2me/pkg/audio"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
	"github.com/MrWong99/talk2me/pkg/provider/stt/openai"
)

// capturedUpload is what the fake API received.
type capturedUpload struct {
	mu       sync.Mutex
	filename string
	fields   map[string]string
	auth     string
}

func newFakeAPI(t *testing.T, text string, status int, got *capturedUpload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.mu.Lock()
			_, hdr, _ := r.FormFile("file")
			if hdr != nil {
				got.filename = hdr.Filename
			}
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			got.auth = r.Header.Get("Authorization")
			got.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
}

func writeWAV(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	pcm := make([]byte, 3200)
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, 16000, 1), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe_SendsVerbatimPromptAndModel(t *testing.T) {
	var got capturedUpload
	srv := newFakeAPI(t, " um so I think \n", http.StatusOK, &got)
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/"), openai.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The temp name carries a misleading extension; the upload must not.
	res, err := p.Transcribe(context.Background(), stt.Request{Path: writeWAV(t, "temp_123.webm"), Verbatim: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "um so I think" {
		t.Errorf("Text = %q, want trimmed transcript", res.Text)
	}
	if got.filename != "temp_123.wav" {
		t.Errorf("upload filename = %q, want temp_123.wav", got.filename)
	}
	if got.fields["model"] != openai.DefaultModel {
		t.Errorf("model = %q, want %q", got.fields["model"], openai.DefaultModel)
	}
	if got.fields["prompt"] != stt.VerbatimPrompt {
		t.Errorf("prompt = %q, want VerbatimPrompt", got.fields["prompt"])
	}
	if got.fields["language"] != "en" {
		t.Errorf("language = %q, want en", got.fields["language"])
	}
	if got.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.auth)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := newFakeAPI(t, "", http.StatusInternalServerError, nil)
	defer srv.Close()

	p, _ := openai.New("sk-test", "whisper-1", openai.WithBaseURL(srv.URL+"/"))
	if _, err := p.Transcribe(context.Background(), stt.Request{Path: writeWAV(t, "a.wav")}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	p, _ := openai.New("sk-test", "whisper-1")
	if _, err := p.Transcribe(context.Background(), stt.Request{Path: "/nonexistent.webm"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
