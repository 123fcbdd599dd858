package askql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/present"
)

type Asker interface {
	Ask(ctx context.Context, question string) pipeline.Response
	AskAudio(ctx context.Context, audio []byte) pipeline.Response
}

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Local builds the in-process pipeline when no base URL is given.
	Local    func(ctx context.Context) (Asker, error)
	ReadFile func(name string) ([]byte, error)
	Stdout   io.Writer
	Stderr   io.Writer
}

type answer struct {
	Question        string          `json:"question"`
	SQL             string          `json:"sql"`
	GenerationError string          `json:"generation_error,omitempty"`
	Display         present.Display `json:"display"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askql", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { writeUsage(stderr, fs) }

	format := fs.String("format", present.FormatTable, "output format: table|csv|markdown|json")
	audioPath := fs.String("audio", "", "ask with a recorded audio file instead of text")
	showSQL := fs.Bool("show-sql", false, "print the generated SQL before the result")
	baseURL := fs.String("base-url", strings.TrimSpace(defaults.BaseURL), "askql API base URL; empty runs the pipeline locally")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "overall timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" && *audioPath == "" {
		writeUsage(stderr, fs)
		return 2
	}
	if question != "" && *audioPath != "" {
		_, _ = fmt.Fprintln(stderr, "give either a question or -audio, not both")
		return 2
	}
	if !present.ValidFormat(*format) {
		_, _ = fmt.Fprintf(stderr, "unknown format %q\n", *format)
		return 2
	}

	var audio []byte
	if *audioPath != "" {
		readFile := defaults.ReadFile
		if readFile == nil {
			readFile = os.ReadFile
		}
		data, err := readFile(*audioPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read audio: %v\n", err)
			return 1
		}
		audio = data
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var (
		result answer
		err    error
	)
	if strings.TrimSpace(*baseURL) != "" {
		client := defaults.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: *timeout}
		}
		result, err = askRemote(ctx, client, *baseURL, *apiKey, question, audio)
	} else {
		result, err = askLocal(ctx, defaults.Local, question, audio)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	return writeAnswer(stdout, stderr, result, *format, *showSQL || audio != nil)
}

func askLocal(ctx context.Context, build func(context.Context) (Asker, error), question string, audio []byte) (answer, error) {
	if build == nil {
		return answer{}, errors.New("local pipeline is not configured; pass -base-url")
	}
	asker, err := build(ctx)
	if err != nil {
		return answer{}, fmt.Errorf("start pipeline: %w", err)
	}
	var response pipeline.Response
	if audio != nil {
		response = asker.AskAudio(ctx, audio)
	} else {
		response = asker.Ask(ctx, question)
	}
	return answer{
		Question:        response.Question,
		SQL:             response.SQL,
		GenerationError: response.GenerationError,
		Display:         response.Display,
	}, nil
}

func askRemote(ctx context.Context, client *http.Client, baseURL, apiKey, question string, audio []byte) (answer, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/v1/ask"
	contentType := "application/json"
	var body []byte
	if audio != nil {
		endpoint += "/audio"
		contentType = "application/octet-stream"
		body = audio
	} else {
		encoded, err := json.Marshal(map[string]string{"question": question})
		if err != nil {
			return answer{}, err
		}
		body = encoded
	}

	code, responseBody, err := doRequest(ctx, client, endpoint, contentType, apiKey, body)
	if err != nil {
		return answer{}, fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return answer{}, fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}

	var result answer
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return answer{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func doRequest(ctx context.Context, client *http.Client, url, contentType, apiKey string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

// writeAnswer prints the result and maps the display state to an exit code.
func writeAnswer(stdout, stderr io.Writer, result answer, format string, showContext bool) int {
	if format == present.FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
			return 1
		}
		return exitCode(result.Display)
	}

	if result.GenerationError != "" {
		_, _ = fmt.Fprintf(stderr, "sql generation failed: %s\n", result.GenerationError)
	}
	if showContext {
		if result.Question != "" {
			_, _ = fmt.Fprintf(stdout, "Question: %s\n", result.Question)
		}
		if result.SQL != "" {
			_, _ = fmt.Fprintf(stdout, "Generated SQL:\n%s\n\n", result.SQL)
		}
	}
	if err := present.WriteText(stdout, result.Display, format); err != nil {
		_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return exitCode(result.Display)
}

func exitCode(display present.Display) int {
	if display.IsError() {
		return 1
	}
	return 0
}

func writeUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "usage: askql [flags] <question...>")
	_, _ = fmt.Fprintln(w, "       askql [flags] -audio <file>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
