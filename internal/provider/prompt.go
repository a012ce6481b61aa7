package provider

import (
	"fmt"
	"strings"

	"github.com/MimeLyc/mythos-studio/internal/character"
)

// CameraPresets rotate by scene index so consecutive scenes are framed differently.
var CameraPresets = []string{
	"wide cinematic shot, full body, epic scale",
	"medium shot, three-quarter profile, dynamic action pose",
	"low-angle heroic shot, looking up at character, majestic presence",
	"close-up divine portrait, intense expression, detailed facial features",
}

const (
	qualityTokens = "masterpiece, best quality, ultra detailed, photorealistic, volumetric lighting, epic cinematic composition, sharp focus"
	styleTokens   = "in the style of Raja Ravi Varma classical Indian art, divine mythological painting, culturally authentic"
	avoidTokens   = "no text, no watermark, no modern objects"
)

// CameraPreset returns the framing for a scene index.
func CameraPreset(sceneIndex int) string {
	if sceneIndex < 0 {
		sceneIndex = -sceneIndex
	}
	return CameraPresets[sceneIndex%len(CameraPresets)]
}

// BuildImagePrompt decorates a scene description with framing and style. When
// subject is set the prompt asks to keep the reference likeness.
func BuildImagePrompt(scenePrompt string, sceneIndex int, subject *character.Character) string {
	parts := make([]string, 0, 7)
	if subject != nil {
		parts = append(parts, fmt.Sprintf("%s, maintaining exact same facial features as reference", subject.Name))
	}
	parts = append(parts, strings.TrimSpace(scenePrompt), CameraPreset(sceneIndex))
	if subject != nil {
		attributes := subject.Attributes
		if attributes == "" {
			attributes = character.GenericAttributes
		}
		parts = append(parts, attributes)
	}
	parts = append(parts,
		"ancient sacred Indian mythological setting",
		qualityTokens,
		styleTokens,
		avoidTokens,
	)
	return strings.Join(parts, ", ")
}
