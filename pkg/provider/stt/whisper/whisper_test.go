package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/talk2me/pkg/audio"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
	"github.com/MrWong99/talk2me/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	fields     map[string]string
	sampleRate uint32
	channels   uint16
	dataBytes  int
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. Every matched request is recorded in
// *got and counted in *callCount.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, got *inferenceRequest) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wav, _ := io.ReadAll(f)
		if got != nil && len(wav) >= 44 {
			mu.Lock()
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			got.channels = binary.LittleEndian.Uint16(wav[22:24])
			got.sampleRate = binary.LittleEndian.Uint32(wav[24:28])
			got.dataBytes = len(wav) - 44
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// writeSpeechWAV writes one second of a 440 Hz tone as a stereo WAV file at
// sampleRate and returns its path.
func writeSpeechWAV(t *testing.T, sampleRate int) string {
	t.Helper()
	pcm := make([]byte, sampleRate*4)
	for i := range sampleRate {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(v))
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, sampleRate, 2), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithDecoder(audio.NewFileDecoder()),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_ReturnsServerText(t *testing.T) {
	const wantText = "Um, I think remote work is like, great"
	var calls atomic.Int32
	var got inferenceRequest
	srv := newMockServer(t, "  "+wantText+"\n", &calls, &got)
	defer srv.Close()

	p, _ := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	res, err := p.Transcribe(context.Background(), stt.Request{
		Path:     writeSpeechWAV(t, 48000),
		Verbatim: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != wantText {
		t.Errorf("Text = %q, want %q", res.Text, wantText)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("inference calls = %d, want 1", n)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q, want default %q", res.Language, "en")
	}
	if got.fields["prompt"] != stt.VerbatimPrompt {
		t.Errorf("prompt = %q, want VerbatimPrompt", got.fields["prompt"])
	}
	if got.fields["model"] != "base.en" {
		t.Errorf("model = %q, want base.en", got.fields["model"])
	}
}

func TestTranscribe_ResamplesTo16kMono(t *testing.T) {
	var got inferenceRequest
	srv := newMockServer(t, "ok", nil, &got)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	res, err := p.Transcribe(context.Background(), stt.Request{Path: writeSpeechWAV(t, 44100)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.sampleRate != 16000 {
		t.Errorf("uploaded sample rate = %d, want 16000", got.sampleRate)
	}
	if got.channels != 1 {
		t.Errorf("uploaded channels = %d, want 1", got.channels)
	}
	if got.dataBytes != 16000*2 {
		t.Errorf("uploaded data = %d bytes, want %d", got.dataBytes, 16000*2)
	}
	if res.Duration.Seconds() != 1 {
		t.Errorf("Duration = %v, want 1s", res.Duration)
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	var got inferenceRequest
	srv := newMockServer(t, "hallo", nil, &got)
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))
	res, err := p.Transcribe(context.Background(), stt.Request{
		Path:     writeSpeechWAV(t, 16000),
		Language: "de",
		Prompt:   "Ähm, also",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.fields["language"] != "de" || res.Language != "de" {
		t.Errorf("language = %q / %q, want de", got.fields["language"], res.Language)
	}
	if got.fields["prompt"] != "Ähm, also" {
		t.Errorf("prompt = %q, want caller prompt", got.fields["prompt"])
	}
}

func TestTranscribe_NoPromptWithoutVerbatim(t *testing.T) {
	var got inferenceRequest
	srv := newMockServer(t, "ok", nil, &got)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Path: writeSpeechWAV(t, 16000)}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if _, ok := got.fields["prompt"]; ok {
		t.Errorf("prompt field sent without Verbatim: %q", got.fields["prompt"])
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), stt.Request{Path: writeSpeechWAV(t, 16000)})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error %q should mention status and body", err)
	}
}

func TestTranscribe_UndecodableFileSkipsServer(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls, nil)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, []byte("this is not audio at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Path: path}); err == nil {
		t.Fatal("expected decode error")
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for undecodable input; want 0", n)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	srv := newMockServer(t, "unexpected", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, stt.Request{Path: writeSpeechWAV(t, 16000)}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
