package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/MimeLyc/mythos-studio/internal/character"
	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// DefaultEditModel renders scenes that carry a reference image.
const DefaultEditModel = "gpt-image-1"

// Describer looks up catalog details for a reference image.
type Describer interface {
	Describe(path string) (character.Character, bool)
}

type ImageOption func(*ImageClient)

// WithCharacters enriches referenced prompts with catalog attributes.
func WithCharacters(d Describer) ImageOption {
	return func(c *ImageClient) {
		c.characters = d
	}
}

func WithEditModel(model string) ImageOption {
	return func(c *ImageClient) {
		if model != "" {
			c.editModel = model
		}
	}
}

func WithImageSize(size string) ImageOption {
	return func(c *ImageClient) {
		if size != "" {
			c.size = size
		}
	}
}

// WithImageHTTPClient sets the HTTP client for API calls and URL downloads.
func WithImageHTTPClient(hc *http.Client) ImageOption {
	return func(c *ImageClient) {
		c.httpClient = hc
	}
}

// ImageClient renders scene images. Scenes without a reference go through
// image generation; scenes with one go through image edits seeded by it.
type ImageClient struct {
	client     openai.Client
	httpClient *http.Client
	model      string
	editModel  string
	size       string
	characters Describer
}

func NewImageClient(cfg Config, model string, opts ...ImageOption) (*ImageClient, error) {
	if model == "" {
		model = DefaultImageModel
	}
	c := &ImageClient{
		httpClient: http.DefaultClient,
		model:      model,
		editModel:  DefaultEditModel,
		size:       DefaultImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := newOpenAIClient(cfg, c.httpClient)
	if err != nil {
		return nil, fmt.Errorf("image client: %w", err)
	}
	c.client = client
	return c, nil
}

// GenerateImage renders req and writes the image to req.OutputPath.
func (c *ImageClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if req.OutputPath == "" {
		return "", fmt.Errorf("output path is required")
	}

	prompt := BuildImagePrompt(req.Prompt, req.SceneIndex, c.subject(req.Reference))

	var (
		resp *openai.ImagesResponse
		err  error
	)
	if req.Reference != "" {
		resp, err = c.edit(ctx, prompt, req.Reference)
	} else {
		resp, err = c.generate(ctx, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("image generation for scene %d failed: %w", req.SceneIndex, err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return "", fmt.Errorf("image generation for scene %d returned no images", req.SceneIndex)
	}

	data, err := c.decode(ctx, resp.Data[0])
	if err != nil {
		return "", fmt.Errorf("image for scene %d: %w", req.SceneIndex, err)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := file.WriteAtomic(req.OutputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	log.Debug("Rendered scene %d image (%d bytes) to %s", req.SceneIndex, len(data), req.OutputPath)
	return req.OutputPath, nil
}

func (c *ImageClient) subject(reference string) *character.Character {
	if reference == "" {
		return nil
	}
	if c.characters != nil {
		if ch, ok := c.characters.Describe(reference); ok {
			return &ch
		}
	}
	name := strings.TrimSuffix(filepath.Base(reference), filepath.Ext(reference))
	return &character.Character{Name: name}
}

func (c *ImageClient) generate(ctx context.Context, prompt string) (*openai.ImagesResponse, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(c.size),
	}
	if supportsResponseFormat(c.model) {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}
	return c.client.Images.Generate(ctx, params)
}

func (c *ImageClient) edit(ctx context.Context, prompt, reference string) (*openai.ImagesResponse, error) {
	f, err := os.Open(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference image: %w", err)
	}
	defer f.Close()

	params := openai.ImageEditParams{
		Image:  openai.ImageEditParamsImageUnion{OfFile: f},
		Prompt: prompt,
		Model:  openai.ImageModel(c.editModel),
		N:      openai.Int(1),
		Size:   openai.ImageEditParamsSize(c.size),
	}
	if supportsResponseFormat(c.editModel) {
		params.ResponseFormat = openai.ImageEditParamsResponseFormatB64JSON
	}
	return c.client.Images.Edit(ctx, params)
}

func (c *ImageClient) decode(ctx context.Context, img openai.Image) ([]byte, error) {
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
		return data, nil
	}
	if img.URL == "" {
		return nil, fmt.Errorf("response carries neither data nor URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image download: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded image is empty")
	}
	return data, nil
}

// gpt-image models always answer with base64 and reject response_format.
func supportsResponseFormat(model string) bool {
	return strings.HasPrefix(model, "dall-e")
}
