package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	// Model is the model identifier. Empty selects a current Sonnet.
	Model anthropic.Model
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
	// MaxTokens bounds each completion. Zero means 8192.
	MaxTokens int64
	// UseBedrock routes calls through AWS Bedrock instead of the direct
	// API, resolving credentials from the standard AWS chain.
	UseBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional shared-config profile.
	AWSProfile string
}

// AnthropicAdapter executes requests against the Anthropic Messages API,
// either directly or via AWS Bedrock.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	name      string
}

// NewAnthropic creates the adapter. Without Bedrock, an API key must be
// present in the config or environment.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	var opts []option.RequestOption
	name := "anthropic"

	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
		name = "bedrock"
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &AnthropicAdapter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		name:      name,
	}, nil
}

// Name returns the backend name.
func (a *AnthropicAdapter) Name() string {
	return a.name
}

// Invoke executes one Messages call and returns the concatenated text
// blocks. Failures are tagged with their retry class.
func (a *AnthropicAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userContent(req))),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", a.classify(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	return out.String(), nil
}

// userContent joins the carry-forward context and the sub-task prompt.
func userContent(req Request) string {
	if req.Context == "" {
		return req.Prompt
	}
	return req.Context + "\n\n" + req.Prompt
}

// classify maps an SDK error to the retry taxonomy: 408/429/5xx are
// transient, other HTTP statuses are permanent, deadline expiry is a
// timeout, everything else (network-level) is transient.
func (a *AnthropicAdapter) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(a.name, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return Transient(a.name, err)
		default:
			return Permanent(a.name, err)
		}
	}
	return Transient(a.name, err)
}
