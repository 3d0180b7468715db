package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/CompassSecurity/jsleek/pkg/config"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	AnthropicVersion = "2023-06-01"
	MaxTokens        = 1024

	SystemPrompt = "You are an expert security researcher and web developer. Explain the following HTTP request in detail, highlighting interesting parameters, potential security implications, and what this request is likely doing. Be concise but thorough."
)

var ErrEmptyInput = errors.New("nothing to explain")

type Mode int

const (
	// ModeExplain explains a raw HTTP request.
	ModeExplain Mode = iota
	// ModeAttack asks for a prioritized checklist of attack vectors.
	ModeAttack
	// ModeSelection explains a fragment of a request or response.
	ModeSelection
)

// Prompt builds the user message for mode.
func Prompt(mode Mode, content string) string {
	switch mode {
	case ModeAttack:
		return "Analyze this HTTP request for potential security vulnerabilities. Provide a prioritized checklist of specific attack vectors to test. " +
			"For each item, specify the target parameter/header, the potential vulnerability (e.g., IDOR, SQLi, XSS), and a brief test instruction. " +
			"Format the output as a clear Markdown checklist.\n\n" + content
	case ModeSelection:
		return fmt.Sprintf("Explain this specific part of an HTTP request/response:\n\n%q\n\nProvide context on what it is, how it's used, and any security relevance.", content)
	default:
		return "Explain this HTTP request:\n\n" + content
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Stream    bool      `json:"stream"`
	Messages  []message `json:"messages"`
}

type Explainer struct {
	settings config.AssistSettings
	client   *retryablehttp.Client
}

func NewExplainer(settings config.AssistSettings, client *retryablehttp.Client) *Explainer {
	return &Explainer{settings: settings, client: client}
}

// Explain streams the explanation of content, calling onText with the text
// received so far, and returns the complete text.
func (e *Explainer) Explain(ctx context.Context, mode Mode, content string, onText TextFunc) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyInput
	}
	if err := e.settings.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(messagesRequest{
		Model:     e.settings.Model,
		MaxTokens: MaxTokens,
		System:    SystemPrompt,
		Stream:    true,
		Messages:  []message{{Role: "user", Content: Prompt(mode, content)}},
	})
	if err != nil {
		return "", fmt.Errorf("failed encoding request: %w", err)
	}

	baseURL := e.settings.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/v1/messages", body)
	if err != nil {
		return "", fmt.Errorf("failed creating request: %w", err)
	}
	req.Header.Set("x-api-key", e.settings.APIKey)
	req.Header.Set("anthropic-version", AnthropicVersion)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "text/event-stream")

	log.Debug().Str("model", e.settings.Model).Int("mode", int(mode)).Msg("Requesting explanation")
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed communicating with Anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError(resp)
	}

	decoder := NewDecoder(onText)
	buf := make([]byte, 4096)
	for !decoder.Done() {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := decoder.Feed(buf[:n]); err != nil {
				return decoder.Text(), err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return decoder.Text(), fmt.Errorf("failed reading stream: %w", readErr)
		}
	}
	if err := decoder.Close(); err != nil {
		return decoder.Text(), err
	}

	return decoder.Text(), nil
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{Status: resp.StatusCode, Type: "http_error", Message: "Failed to communicate with Anthropic API"}
	if gjson.ValidBytes(data) {
		if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
			apiErr.Message = msg.String()
		}
		if typ := gjson.GetBytes(data, "error.type"); typ.Exists() {
			apiErr.Type = typ.String()
		}
	}
	return apiErr
}

