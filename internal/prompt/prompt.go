// Package prompt holds the system instructions sent with every backend call.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

//go:embed system-prompt.txt
var embedded string

// ErrEmptyPrompt is returned when a prompt file has no content.
var ErrEmptyPrompt = errors.New("system prompt is empty")

// System returns the built-in system prompt.
func System() string {
	return strings.TrimSpace(embedded)
}

// Load reads a system prompt from path. An empty path yields the built-in prompt.
func Load(path string) (string, error) {
	if path == "" {
		slog.Debug("prompt.Load: no prompt file configured, using built-in prompt")
		return System(), nil
	}

	slog.Debug("prompt.Load: loading system prompt from file", "file", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("system prompt file does not exist: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("prompt.Load: failed to read system prompt file", "file", path, "error", err)
		return "", fmt.Errorf("failed to read system prompt file: %w", err)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyPrompt, path)
	}
	slog.Info("prompt.Load: system prompt loaded", "file", path, "length", len(text))
	return text, nil
}
