package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"listing-agent/internal/diag"
)

// EventKind identifies a streaming callback event.
type EventKind string

const (
	// EventPrompt is emitted once before the request goes out, carrying a
	// preview of the prompt so observers see what was asked.
	EventPrompt EventKind = "prompt"
	// EventChunk carries one incremental fragment of model output.
	EventChunk EventKind = "chunk"
	// EventDone signals normal completion of a streamed generation.
	EventDone EventKind = "done"
	// EventError reports transport failure after all retries were spent.
	EventError EventKind = "error"
)

// Event is a single streaming notification.
type Event struct {
	Kind EventKind
	Text string
}

// EventFunc receives streaming events. A nil EventFunc disables streaming
// callbacks without changing the return value.
type EventFunc func(Event)

// Generator is the narrow interface evaluators depend on, so tests can swap
// the HTTP client for a canned stub.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, stream bool, onEvent EventFunc) (string, error)
}

// TransportError describes a connectivity, timeout or non-success status
// failure after the retry budget was exhausted.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: ollama HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config holds inference endpoint parameters. Zero values fall back to the
// defaults the agent has always run with.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retries        int
	// Backoff is the linear backoff base; retry N waits Backoff*N.
	Backoff time.Duration
}

// Client talks to an Ollama-style /api/generate endpoint with retry/backoff
// and optional streaming.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	readTimeout time.Duration
	retries     int
	backoff     time.Duration
}

const promptPreviewLimit = 2500

// NewClient constructs a Client from the supplied configuration.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:11434"
	}
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = 600 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connect}).DialContext,
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport},
		baseURL:     base,
		readTimeout: read,
		retries:     retries,
		backoff:     backoff,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type streamFragment struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends the prompt to the generation endpoint and returns the full
// output text. In streaming mode each inbound fragment is delivered through
// onEvent before being accumulated. Transport failures are retried with
// linearly increasing backoff; once the budget is spent a *TransportError is
// returned (and surfaced as an EventError when streaming).
func (c *Client) Generate(ctx context.Context, model, prompt string, stream bool, onEvent EventFunc) (string, error) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	if diag.Enabled("AGENT_LOG_PROMPT") {
		diag.Section(fmt.Sprintf("OLLAMA PROMPT (%s)", model))
		diag.Block("prompt", diag.Trunc(prompt, promptPreviewLimit))
	}
	if stream {
		onEvent(Event{Kind: EventPrompt, Text: diag.Trunc(prompt, promptPreviewLimit)})
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		out, err := c.generateOnce(ctx, model, prompt, stream, onEvent)
		if err == nil {
			if diag.Enabled("AGENT_LOG_RAW") {
				diag.Section(fmt.Sprintf("OLLAMA RAW OUTPUT (%s)", model))
				diag.Block("raw", diag.Trunc(out, promptPreviewLimit))
			}
			return out, nil
		}
		lastErr = err
		logrus.WithError(err).WithFields(logrus.Fields{
			"model":   model,
			"attempt": attempt + 1,
			"retries": c.retries,
		}).Warn("ollama generate failed")
		if ctx.Err() != nil {
			break
		}
	}

	terr := asTransportError("generate", lastErr)
	if stream {
		onEvent(Event{Kind: EventError, Text: terr.Error()})
	}
	return "", terr
}

func (c *Client) generateOnce(ctx context.Context, model, prompt string, stream bool, onEvent EventFunc) (string, error) {
	reqCtx := ctx
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: stream,
		Options: map[string]any{
			"temperature": 0,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// keep a slice of the body for debugging
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return "", &TransportError{
			Op:     "generate",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	if !stream {
		var decoded generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return "", &TransportError{Op: "generate", Err: fmt.Errorf("decode response: %w", err)}
		}
		return decoded.Response, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var sb strings.Builder
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag streamFragment
		if err := json.Unmarshal(line, &frag); err != nil {
			continue
		}
		if frag.Response != "" {
			sb.WriteString(frag.Response)
			onEvent(Event{Kind: EventChunk, Text: frag.Response})
		}
		if frag.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &TransportError{Op: "generate", Err: err}
	}
	onEvent(Event{Kind: EventDone})
	return sb.String(), nil
}

func asTransportError(op string, err error) *TransportError {
	if terr, ok := err.(*TransportError); ok {
		return terr
	}
	return &TransportError{Op: op, Err: err}
}
