package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/openai/openai-go/v3"

	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// SpeechClient narrates scene text to MP3 files.
type SpeechClient struct {
	client openai.Client
	model  string
}

func NewSpeechClient(cfg Config, model string, httpClient *http.Client) (*SpeechClient, error) {
	if model == "" {
		model = DefaultSpeechModel
	}
	client, err := newOpenAIClient(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &SpeechClient{client: client, model: model}, nil
}

// GenerateAudio speaks req.Text with req.Voice into req.OutputPath.
func (c *SpeechClient) GenerateAudio(ctx context.Context, req SpeechRequest) (string, error) {
	if req.OutputPath == "" {
		return "", fmt.Errorf("output path is required")
	}
	if req.Text == "" {
		return "", fmt.Errorf("narration text is required")
	}

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return "", fmt.Errorf("speech for scene %d failed: %w", req.SceneIndex, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read speech for scene %d: %w", req.SceneIndex, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("speech for scene %d is empty", req.SceneIndex)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}
	if err := file.WriteAtomic(req.OutputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}

	log.Debug("Narrated scene %d with voice %s to %s", req.SceneIndex, req.Voice, req.OutputPath)
	return req.OutputPath, nil
}
