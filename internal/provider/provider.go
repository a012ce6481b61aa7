// Package provider wraps the OpenAI image and speech endpoints used to
// render scenes.
package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultImageModel  = "dall-e-3"
	DefaultImageSize   = "1024x1024"
	DefaultSpeechModel = "tts-1"
)

// Config holds the connection settings shared by image and speech clients.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ImageRequest describes one scene image. OutputPath is where the PNG lands.
type ImageRequest struct {
	Prompt     string
	Reference  string
	SceneIndex int
	OutputPath string
}

// SpeechRequest describes one scene narration. OutputPath is where the MP3 lands.
type SpeechRequest struct {
	Text       string
	Voice      string
	SceneIndex int
	OutputPath string
}

// newOpenAIClient builds an SDK client. SDK retries are disabled; retrying is
// owned by the caller's retry policy.
func newOpenAIClient(cfg Config, httpClient *http.Client) (openai.Client, error) {
	if cfg.APIKey == "" {
		return openai.Client{}, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return openai.NewClient(opts...), nil
}
