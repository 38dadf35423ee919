// Package ollama streams grounded answers from a local Ollama chat model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docchat/internal/domain"
)

// systemPrompt is the fixed grounding instruction: answer only from the
// supplied context, state explicitly when the context is insufficient, and
// structure the answer readably.
const systemPrompt = `You are an AI assistant tasked with providing detailed answers based solely on the given context. Your goal is to analyze the information provided and formulate a comprehensive, well-structured response to the question.

context will be passed as "Context:"
user question will be passed as "Question:"

To answer the question:
1. Thoroughly analyze the context, identifying key information relevant to the question.
2. Organize your thoughts and plan your response to ensure a logical flow of information.
3. Formulate a detailed answer that directly addresses the question, using only the information provided in the context.
4. Ensure your answer is comprehensive, covering all relevant aspects found in the context.
5. If the context doesn't contain sufficient information to fully answer the question, state this clearly in your response.

Format your response as follows:
1. Use clear, concise language.
2. Organize your answer into paragraphs for readability.
3. Use bullet points or numbered lists where appropriate to break down complex information.
4. If relevant, include any headings or subheadings to structure your response.
5. Ensure proper grammar, punctuation, and spelling throughout your answer.

Important: Base your entire response solely on the information provided in the context. Do not include any external knowledge or assumptions not present in the given text.`

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2:3b"
)

// Config configures the Ollama chat client.
type Config struct {
	BaseURL string
	Model   string
	// ConnectTimeout bounds dialing and headers, not the stream itself;
	// stream lifetime is governed by the caller's context.
	ConnectTimeout time.Duration
}

// Client streams chat completions from Ollama.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewClient creates a chat client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.ConnectTimeout,
			},
		},
	}
}

// Generate streams answer fragments for the question grounded in the given
// context string. The returned channel is finite and not restartable: it
// closes when the model signals completion, after delivering a terminal
// error fragment, or when ctx is cancelled. Cancelling ctx releases the
// underlying connection, so an abandoned stream cannot corrupt later
// requests.
func (c *Client) Generate(ctx context.Context, contextText, question string) (<-chan domain.Fragment, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context: %s, Question: %s", contextText, question)},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama chat: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: ollama chat status %d: %s", domain.ErrUpstream, resp.StatusCode, msg)
	}

	fragments := make(chan domain.Fragment)
	go func() {
		defer close(fragments)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var chunk chatChunk
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return
				}
				select {
				case fragments <- domain.Fragment{Err: fmt.Errorf("%w: reading ollama stream: %v", domain.ErrUpstream, err)}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Done {
				return
			}
			select {
			case fragments <- domain.Fragment{Content: chunk.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fragments, nil
}
