package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the chat command.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitRateLimited = 2
	ExitUnavailable = 3
)

var (
	chatMessage    string
	chatGatewayURL string
	chatProvider   string
	chatStream     bool
	chatTimeout    int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send a one-shot message to a running gateway",
	Long: `Send a message to the Aria gateway and print the assistant's reply.
Proposals are printed to stderr as JSON cards; nothing is executed.

Examples:
  aria chat -m "what does the shuffle toggle do?"
  aria chat -m "play something calm" --stream
  aria chat -m "queue up my focus playlist" --provider openai

Exit codes:
  0  success
  1  failure
  2  rate limited
  3  gateway unavailable`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "message to send (required)")
	chatCmd.Flags().StringVar(&chatGatewayURL, "gateway-url", "http://localhost:8080", "gateway HTTP URL")
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "force a specific LLM backend")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "stream response via SSE")
	chatCmd.Flags().IntVar(&chatTimeout, "timeout", 120, "timeout in seconds")

	_ = chatCmd.MarkFlagRequired("message")
}

func runChat(_ *cobra.Command, _ []string) error {
	if chatMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	gatewayURL := goutils.Env("ARIA_GATEWAY_URL", chatGatewayURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(chatTimeout)*time.Second)
	defer cancel()

	if chatStream {
		return runChatSSE(ctx, gatewayURL)
	}
	return runChatHTTP(ctx, gatewayURL)
}

// runChatHTTP sends a synchronous chat turn and prints the response.
func runChatHTTP(ctx context.Context, gatewayURL string) error {
	reqBody, _ := json.Marshal(map[string]any{
		"message":  chatMessage,
		"provider": chatProvider,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", gatewayURL+"/v1/chat", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach gateway at %s: %v\n", gatewayURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var result struct {
			Message       string            `json:"message"`
			Proposals     []json.RawMessage `json:"proposals"`
			Provider      string            `json:"provider"`
			Model         string            `json:"model"`
			TokensUsed    int               `json:"tokens_used"`
			Cached        bool              `json:"cached"`
			CorrelationID string            `json:"correlation_id"`
		}
		_ = json.Unmarshal(respBody, &result)
		fmt.Println(result.Message)
		for _, p := range result.Proposals {
			fmt.Fprintf(os.Stderr, "[proposal] %s\n", string(p))
		}
		fmt.Fprintf(os.Stderr, "\n[provider=%s model=%s tokens=%d cached=%t correlation_id=%s]\n",
			result.Provider, result.Model, result.TokensUsed, result.Cached, result.CorrelationID)
		os.Exit(ExitSuccess)

	case http.StatusTooManyRequests:
		fmt.Fprintf(os.Stderr, "Error: rate limited, retry after %ss\n", resp.Header.Get("Retry-After"))
		os.Exit(ExitRateLimited)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: gateway unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: gateway returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}

// runChatSSE sends a streaming chat turn and prints events as they arrive.
func runChatSSE(ctx context.Context, gatewayURL string) error {
	reqBody, _ := json.Marshal(map[string]any{
		"message":  chatMessage,
		"provider": chatProvider,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", gatewayURL+"/v1/chat/stream", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach gateway at %s: %v\n", gatewayURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		fmt.Fprintf(os.Stderr, "Error: rate limited, retry after %ss\n", resp.Header.Get("Retry-After"))
		os.Exit(ExitRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: gateway returned %d: %s\n", resp.StatusCode, string(body))
		os.Exit(ExitFailure)
	}

	scanner := bufio.NewScanner(resp.Body)
	exitCode := ExitSuccess

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event struct {
			Type     string          `json:"type"`
			Content  string          `json:"content"`
			Proposal json.RawMessage `json:"proposal"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "text":
			fmt.Print(event.Content)
		case "proposal":
			fmt.Fprintf(os.Stderr, "[proposal] %s\n", string(event.Proposal))
		case "error":
			fmt.Fprintf(os.Stderr, "Error: %s\n", event.Content)
			exitCode = ExitFailure
		case "done":
			fmt.Println()
			os.Exit(exitCode)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: stream interrupted: %v\n", err)
		os.Exit(ExitFailure)
	}

	return nil
}
