package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultMaxToolRounds = 10
	errTypeSessionLimit  = "session_limit"
)

// ErrSessionLimit signals that the chat's agent session hit its size limit and
// cannot accept further turns. Callers distinguish it from ordinary failures:
// the user should be told to start a fresh conversation.
var ErrSessionLimit = errors.New("agent session limit reached")

// ErrEmptyResponse signals that the agent produced no usable text.
var ErrEmptyResponse = errors.New("agent returned no usable response")

// Client talks to the hosted agent API. The agent keeps conversation state
// server-side behind a resumable session token; tool calls it emits are
// executed locally against the registry and posted back until the agent
// produces final text.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	tools      *ToolRegistry
}

// Reply is the final outcome of one agent invocation.
type Reply struct {
	Text      string
	SessionID string
}

// NewClient creates a hosted agent client.
func NewClient(apiURL, apiKey string, tools *ToolRegistry) *Client {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Client{
		apiKey: apiKey,
		apiURL: apiURL,
		tools:  tools,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// IsConfigured returns true if the client has an endpoint to talk to
func (c *Client) IsConfigured() bool {
	return c.apiURL != ""
}

type invokeRequest struct {
	SessionID   string       `json:"session_id,omitempty"`
	ChatID      string       `json:"chat_id"`
	Message     string       `json:"message,omitempty"`
	Tools       []Tool       `json:"tools,omitempty"`
	ToolResults []toolResult `json:"tool_results,omitempty"`
}

type toolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type toolResult struct {
	ID     string `json:"id"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type invokeResponse struct {
	SessionID string     `json:"session_id"`
	Text      string     `json:"text,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	Error     *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends a message to the agent on behalf of a chat and returns the
// final text. An existing session token resumes the server-side conversation;
// the returned Reply carries the (possibly new) token. Tool calls emitted by
// the agent are executed locally and fed back, bounded by a round cap.
func (c *Client) Invoke(ctx context.Context, chatID, message, sessionID string) (*Reply, error) {
	req := invokeRequest{
		SessionID: sessionID,
		ChatID:    chatID,
		Message:   message,
		Tools:     c.tools.Tools(),
	}

	for round := 0; round < defaultMaxToolRounds; round++ {
		resp, err := c.post(ctx, req)
		if err != nil {
			return nil, err
		}

		if resp.SessionID != "" {
			sessionID = resp.SessionID
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				return nil, ErrEmptyResponse
			}
			return &Reply{Text: resp.Text, SessionID: sessionID}, nil
		}

		results := make([]toolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			output, err := c.tools.Execute(ctx, call.Name, call.Input)
			if err != nil {
				fmt.Printf("Agent: tool %s failed: %v\n", call.Name, err)
				results = append(results, toolResult{ID: call.ID, Error: err.Error()})
				continue
			}
			results = append(results, toolResult{ID: call.ID, Output: output})
		}

		req = invokeRequest{
			SessionID:   sessionID,
			ChatID:      chatID,
			ToolResults: results,
		}
	}

	return nil, fmt.Errorf("agent did not finish within %d tool rounds", defaultMaxToolRounds)
}

func (c *Client) post(ctx context.Context, req invokeRequest) (*invokeResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp invokeResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		if apiResp.Error.Type == errTypeSessionLimit {
			return nil, fmt.Errorf("%w: %s", ErrSessionLimit, apiResp.Error.Message)
		}
		return nil, fmt.Errorf("API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return &apiResp, nil
}
