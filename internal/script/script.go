// Package script asks a chat model for a scene-by-scene narration script.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"github.com/invopop/jsonschema"

	"github.com/MimeLyc/mythos-studio/internal/llm"
	"github.com/MimeLyc/mythos-studio/internal/pipeline"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// DefaultSceneCount is the number of scenes requested per script.
const DefaultSceneCount = 4

// ErrMalformedScript is returned when the model's answer cannot be turned into scenes.
var ErrMalformedScript = errors.New("malformed script")

const systemPrompt = "You are an expert director of mythological cinema. Output JSON only."

// Script is the structured answer requested from the model.
type Script struct {
	Scenes []SceneSpec `json:"scenes" jsonschema_description:"The scenes of the video, in playback order."`
}

type SceneSpec struct {
	Narration   string `json:"narration" jsonschema_description:"Voice-over text for the scene, at most two sentences."`
	ImagePrompt string `json:"image_prompt" jsonschema_description:"Visual description of the scene: environment, action, lighting and mood."`
}

// GenerateSchema reflects a strict JSON schema for T.
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var scriptSchema = GenerateSchema[Script]()

// Chatter is the part of the LLM client the generator needs.
type Chatter interface {
	StructuredChat(ctx context.Context, prompt string, systemPrompt string, format *llm.ResponseFormat) (string, error)
}

type Generator struct {
	mu         sync.RWMutex
	client     Chatter
	sceneCount int
}

func NewGenerator(client Chatter, sceneCount int) *Generator {
	if sceneCount <= 0 {
		sceneCount = DefaultSceneCount
	}
	return &Generator{client: client, sceneCount: sceneCount}
}

// SetClient swaps the chat client. Scripts already in flight keep the old one.
func (g *Generator) SetClient(client Chatter) {
	g.mu.Lock()
	g.client = client
	g.mu.Unlock()
}

// GenerateScript writes a script for topic. Errors are not retried.
func (g *Generator) GenerateScript(ctx context.Context, topic string) ([]pipeline.Scene, error) {
	prompt := buildPrompt(topic, g.sceneCount, DetectLanguage(topic))

	g.mu.RLock()
	client := g.client
	g.mu.RUnlock()

	content, err := client.StructuredChat(ctx, prompt, systemPrompt,
		llm.NewJSONSchemaFormat("mythology_script", "Scene-by-scene narration script", scriptSchema))
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	scenes, err := Parse(content)
	if err != nil {
		return nil, err
	}
	log.Info("Generated script with %d scenes for topic %q", len(scenes), topic)
	return scenes, nil
}

// Parse accepts {"scenes":[...]} and, for older prompts, a bare array of
// scenes. Markdown code fences around the JSON are ignored. Entries without
// narration are dropped; a missing image prompt falls back to the narration.
func Parse(content string) ([]pipeline.Scene, error) {
	raw := stripFences(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedScript)
	}

	var specs []SceneSpec
	switch raw[0] {
	case '{':
		var s Script
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedScript, err)
		}
		specs = s.Scenes
	case '[':
		if err := json.Unmarshal([]byte(raw), &specs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedScript, err)
		}
	default:
		return nil, fmt.Errorf("%w: not JSON: %s", ErrMalformedScript, truncate(raw, 200))
	}

	scenes := make([]pipeline.Scene, 0, len(specs))
	for _, spec := range specs {
		narration := strings.TrimSpace(spec.Narration)
		if narration == "" {
			continue
		}
		prompt := strings.TrimSpace(spec.ImagePrompt)
		if prompt == "" {
			prompt = narration
		}
		scenes = append(scenes, pipeline.Scene{
			Index:       len(scenes),
			Narration:   narration,
			ImagePrompt: prompt,
		})
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes with narration in %s", ErrMalformedScript, truncate(raw, 200))
	}
	return scenes, nil
}

// DetectLanguage returns "hi" for Devanagari text and "en" otherwise.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return "en"
	}
	if whatlanggo.DetectScript(text) == unicode.Devanagari {
		return "hi"
	}
	return "en"
}

func buildPrompt(topic string, sceneCount int, language string) string {
	langInstruction := "Narrate ONLY in English."
	if language == "hi" {
		langInstruction = "Narrate ONLY in Hindi (Devanagari script)."
	}

	return fmt.Sprintf(`Create a %d-scene script for a short narrated video about Indian mythology.
Topic: %s

Requirements:
1. Each scene is distinct, with a different action or location.
2. %s
3. Narration is at most two sentences per scene.
4. Image prompts are cinematic and vivid.

Answer with an object whose "scenes" array holds objects with "narration" and "image_prompt".`,
		sceneCount, topic, langInstruction)
}

func stripFences(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
