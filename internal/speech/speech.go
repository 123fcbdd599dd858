package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transcriber converts spoken audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

var (
	ErrNoAudio            = errors.New("Error: No audio received.")
	ErrUnexpectedResponse = errors.New("Error: Unexpected API response format.")
)

// APIError is an error reported in the body of a transcription response.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "Error from API: " + e.Message
}

const DefaultWhisperURL = "https://api-inference.huggingface.co/models/openai/whisper-large-v3"

type WhisperConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// WhisperTranscriber calls a hosted Whisper inference endpoint with raw audio.
type WhisperTranscriber struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("speech api key is required")
	}
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = DefaultWhisperURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperTranscriber{
		url:    endpoint,
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Error: Could not connect to the transcription service. %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Error: Could not connect to the transcription service. %w", err)
	}

	var parsed struct {
		Text  *string `json:"text"`
		Error any     `json:"error"`
	}
	decodeErr := json.Unmarshal(body, &parsed)
	switch {
	case decodeErr == nil && parsed.Error != nil:
		return "", &APIError{Message: fmt.Sprint(parsed.Error)}
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("Error: Could not connect to the transcription service. status=%d", resp.StatusCode)
	case decodeErr == nil && parsed.Text != nil:
		return strings.TrimSpace(*parsed.Text), nil
	default:
		return "", ErrUnexpectedResponse
	}
}
