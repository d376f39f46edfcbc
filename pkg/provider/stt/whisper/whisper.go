// Package whisper transcribes uploads with whisper.cpp, either through a
// whisper-server process ([Provider], POST /inference) or in-process through
// the CGO bindings ([NativeProvider]). Uploads are decoded and resampled
// locally because whisper only accepts 16 kHz mono.
//
//	p, _ := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, stt.Request{Path: "/tmp/upload.webm", Verbatim: true})
package whisper

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/talk2me/pkg/audio"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

const (
	sampleRate      = 16000
	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Provider sends audio to a whisper-server.
type Provider struct {
	endpoint string
	model    string
	language string
	decoder  audio.Decoder
	client   *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps whatever the
// server was started with.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a request has none.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithDecoder replaces the decoder used to turn uploads into samples. The
// default handles WAV, MP3 and Ogg/Opus.
func WithDecoder(d audio.Decoder) Option { return func(p *Provider) { p.decoder = d } }

func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// New returns a provider for the whisper-server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL is required")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		language: defaultLanguage,
		decoder:  audio.NewFileDecoder(),
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe decodes the upload at req.Path, resamples it to 16 kHz mono,
// and posts it to the server as WAV. The request language wins over the
// one set with [WithLanguage].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	samples, err := loadSamples(ctx, p.decoder, req.Path)
	if err != nil {
		return nil, err
	}
	lang := cmp.Or(req.Language, p.language)

	body, contentType, err := p.form(audio.EncodeWAV(audio.ToPCM16(samples), sampleRate, 1), lang, req.PromptText())
	if err != nil {
		return nil, err
	}
	text, err := p.post(ctx, body, contentType)
	if err != nil {
		return nil, err
	}
	return result(text, lang, len(samples)), nil
}

// form builds the multipart body whisper-server expects. Empty fields are
// left out so the server applies its own defaults.
func (p *Provider) form(wav []byte, lang, prompt string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err == nil {
		_, err = fw.Write(wav)
	}
	for _, kv := range [][2]string{
		{"response_format", "json"},
		{"language", lang},
		{"model", p.model},
		{"prompt", prompt},
	} {
		if err != nil {
			break
		}
		if kv[1] != "" {
			err = mw.WriteField(kv[0], kv[1])
		}
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return nil, "", fmt.Errorf("whisper: build form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (p *Provider) post(ctx context.Context, body io.Reader, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: inference: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func loadSamples(ctx context.Context, dec audio.Decoder, path string) ([]float64, error) {
	clip, err := dec.Decode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode audio: %w", err)
	}
	return audio.Resample(clip.Samples, clip.SampleRate, sampleRate), nil
}

func result(text, lang string, n int) *stt.Result {
	return &stt.Result{
		Text:     text,
		Language: lang,
		Duration: time.Duration(n) * time.Second / sampleRate,
	}
}
