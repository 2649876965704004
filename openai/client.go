package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"visit-summary-service/config"
	"visit-summary-service/metrics"
	"visit-summary-service/prompt"

	"github.com/apex/log"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-nano"

const (
	maxErrorBody  = 64 * 1024
	maxStreamLine = 1024 * 1024
)

type Client struct {
	apiKey  string
	baseURL string
	model   string
	buffer  int
	client  *http.Client
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// StreamResponse is one chunk of a streamed chat completion.
// Content is a pointer because the provider sends null deltas.
type StreamResponse struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// CompletionError is returned when the upstream stream cannot be opened,
// is rejected, or breaks while being read.
type CompletionError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func NewClient(cfg *config.Config) *Client {
	model := cfg.OpenAIModel
	if model == "" {
		model = DefaultModel
	}
	buffer := cfg.StreamBuffer
	if buffer < 1 {
		buffer = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.OpenAIConnectTimeout

	return &Client{
		apiKey:  cfg.OpenAIAPIKey,
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:   model,
		buffer:  buffer,
		client:  &http.Client{Transport: transport},
	}
}

// Model returns the model identifier sent upstream.
func (c *Client) Model() string {
	return c.model
}

// StreamChatCompletion opens a streaming chat completion for the prompt pair.
// The request is established synchronously, so connection failures and
// non-2xx responses are returned here. Fragments are then read on a
// background goroutine bound to ctx.
func (c *Client) StreamChatCompletion(ctx context.Context, pair prompt.Pair) (*Stream, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: pair.System},
			{Role: "user", Content: pair.User},
		},
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &CompletionError{Op: "marshal request", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		cancel()
		return nil, &CompletionError{Op: "create request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, &CompletionError{Op: "send request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		defer cancel()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &CompletionError{
			Op:         "open stream",
			StatusCode: resp.StatusCode,
			Err:        errors.New(upstreamMessage(body)),
		}
	}

	s := &Stream{
		fragments: make(chan string, c.buffer),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go s.consume(ctx, resp.Body)

	return s, nil
}

// Stream is a single-pass sequence of text fragments.
type Stream struct {
	fragments chan string
	done      chan struct{}
	cancel    context.CancelFunc
	err       error
}

// Fragments yields non-empty text fragments in arrival order. The channel is
// closed when the upstream signals completion, fails, or ctx is cancelled.
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Err reports why the stream ended. It is nil after a clean finish and
// while the stream is still running. Once Fragments is closed, Err is final.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops reading from upstream and waits for the reader to exit.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Stream) consume(ctx context.Context, body io.ReadCloser) {
	defer close(s.fragments)
	defer close(s.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		text, err := decodeChunk(data)
		if err != nil {
			s.err = err
			return
		}
		if text == "" {
			continue
		}

		metrics.FragmentsTotal.Inc()
		select {
		case s.fragments <- text:
		case <-ctx.Done():
			s.err = &CompletionError{Op: "read stream", Err: ctx.Err()}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		s.err = &CompletionError{Op: "read stream", Err: err}
		return
	}
	log.Debug("openai.stream.eof_without_done")
}

func decodeChunk(data string) (string, error) {
	var chunk StreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", &CompletionError{Op: "decode chunk", Err: err}
	}
	if chunk.Error != nil {
		return "", &CompletionError{Op: "stream", Err: errors.New(chunk.Error.Message)}
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return "", nil
	}
	return *chunk.Choices[0].Delta.Content, nil
}

func upstreamMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		return "empty response body"
	}
	return msg
}
