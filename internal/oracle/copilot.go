package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotTransport answers requests through GitHub Copilot sessions. Every
// request gets a fresh session so turns never share conversation state.
type CopilotTransport struct {
	modelID string
	client  copilotClient

	startOnce sync.Once
	startErr  error
}

type CopilotOptions struct {
	// NewCopilotClient replaces the SDK client, mainly for tests.
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// NewCopilotTransport creates a transport for modelID. A blank model lets
// the Copilot CLI pick its own default.
func NewCopilotTransport(modelID string, options *CopilotOptions) *CopilotTransport {
	copilotOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}

	return &CopilotTransport{modelID: modelID, client: client}
}

func (c *CopilotTransport) Complete(ctx context.Context, req Request) (string, error) {
	c.startOnce.Do(func() {
		// AutoStart races when sessions are created from several goroutines.
		c.startErr = c.client.Start(ctx)
	})
	if c.startErr != nil {
		return "", fmt.Errorf("copilot failed to start: %w", c.startErr)
	}

	session, err := c.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               c.modelID,
		OnPermissionRequest: denyAllTools,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	var (
		mu    sync.Mutex
		parts []string
	)
	unsubscribe := session.On(func(event copilot.SessionEvent) {
		logSessionEvent(event)
		if event.Data.Content != nil {
			mu.Lock()
			parts = append(parts, *event.Data.Content)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	resp, err := session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: req.System + "\n\n" + req.User,
	})
	if err != nil {
		return "", fmt.Errorf("copilot request failed: %w", err)
	}

	if resp != nil && resp.Data.Content != nil {
		return *resp.Data.Content, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if len(parts) == 0 {
		return "", errors.New("copilot returned no assistant message")
	}
	return parts[len(parts)-1], nil
}

// Close stops the Copilot client.
func (c *CopilotTransport) Close() error {
	if err := c.client.Stop(); err != nil {
		slog.Info("failed to stop client", "error", err)
		return err
	}
	return nil
}

// The oracle only proposes text; it never gets to run tools.
func denyAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	return copilot.PermissionRequestResult{Kind: "denied-by-rules"}, nil
}

func logSessionEvent(event copilot.SessionEvent) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{"type", event.Type}
	if event.Data.Content != nil {
		attrs = append(attrs, "content", truncate(*event.Data.Content, 500))
	}
	if event.Data.ReasoningText != nil {
		attrs = append(attrs, "reasoningText", truncate(*event.Data.ReasoningText, 500))
	}
	slog.Debug("Copilot event", attrs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
