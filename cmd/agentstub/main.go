// Package main provides a stand-in for the hosted agent API for local
// development. It speaks the invoke protocol over plain HTTP: messages are
// echoed back, and a message starting with "tool:" asks the bot to run that
// tool so the local tool wiring can be exercised end to end.
//
// Usage:
//
//	go run cmd/agentstub/main.go
//	AGENT_API_URL=http://localhost:8089/invoke go run main.go
//
// A message like "tool:current_datetime {}" produces one tool call whose
// result is echoed back on the next round.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

type invokeRequest struct {
	SessionID   string       `json:"session_id"`
	ChatID      string       `json:"chat_id"`
	Message     string       `json:"message"`
	Tools       []toolInfo   `json:"tools"`
	ToolResults []toolResult `json:"tool_results"`
}

type toolInfo struct {
	Name string `json:"name"`
}

type toolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type toolResult struct {
	ID     string `json:"id"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

type invokeResponse struct {
	SessionID string     `json:"session_id"`
	Text      string     `json:"text,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

func main() {
	port := os.Getenv("AGENT_STUB_PORT")
	if port == "" {
		port = "8089"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", handleInvoke)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		fmt.Printf("Agent stub listening on http://localhost:%s/invoke\n", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Agent stub error: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Agent stub stopped")
}

func handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("stub-%d", time.Now().UnixNano())
	}

	// Tool results from a previous round are echoed back as final text.
	if len(req.ToolResults) > 0 {
		var parts []string
		for _, result := range req.ToolResults {
			if result.Error != "" {
				parts = append(parts, "tool error: "+result.Error)
				continue
			}
			parts = append(parts, result.Output)
		}
		respondJSON(w, invokeResponse{SessionID: sessionID, Text: strings.Join(parts, "\n")})
		return
	}

	// "tool:<name> <json input>" asks the caller to run that tool.
	if name, rest, ok := strings.Cut(strings.TrimPrefix(req.Message, "tool:"), " "); ok && strings.HasPrefix(req.Message, "tool:") {
		input := map[string]any{}
		if err := json.Unmarshal([]byte(rest), &input); err != nil {
			respondJSON(w, invokeResponse{SessionID: sessionID, Text: "bad tool input: " + err.Error()})
			return
		}
		respondJSON(w, invokeResponse{
			SessionID: sessionID,
			ToolCalls: []toolCall{{ID: "stub-call-1", Name: name, Input: input}},
		})
		return
	}

	respondJSON(w, invokeResponse{
		SessionID: sessionID,
		Text:      fmt.Sprintf("You said: %s", req.Message),
	})
}

func respondJSON(w http.ResponseWriter, data invokeResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
