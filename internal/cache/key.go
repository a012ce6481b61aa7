package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Kind is the artifact family an entry belongs to.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// noReference stands in for an absent character reference in image keys.
const noReference = "none"

func (k Kind) dir() string {
	switch k {
	case KindImage:
		return "images"
	case KindAudio:
		return "audio"
	default:
		return ""
	}
}

func (k Kind) defaultExt() string {
	if k == KindAudio {
		return ".mp3"
	}
	return ".png"
}

// Descriptor carries the semantic inputs that identify a generated artifact.
// Only the fields relevant to Kind participate in the key.
type Descriptor struct {
	Kind Kind

	// image
	Prompt     string
	Reference  string
	SceneIndex int

	// audio
	Text  string
	Voice string
}

// ImageDescriptor identifies an image by prompt, reference image and position.
func ImageDescriptor(prompt, reference string, sceneIndex int) Descriptor {
	if reference == "" {
		reference = noReference
	}
	return Descriptor{
		Kind:       KindImage,
		Prompt:     prompt,
		Reference:  reference,
		SceneIndex: sceneIndex,
	}
}

// AudioDescriptor identifies narration audio by text and voice.
func AudioDescriptor(text, voice string) Descriptor {
	return Descriptor{
		Kind:  KindAudio,
		Text:  text,
		Voice: voice,
	}
}

func (d Descriptor) fields() []string {
	switch d.Kind {
	case KindImage:
		ref := d.Reference
		if ref == "" {
			ref = noReference
		}
		return []string{d.Prompt, ref, strconv.Itoa(d.SceneIndex)}
	case KindAudio:
		return []string{d.Text, d.Voice}
	default:
		return nil
	}
}

// Key is the hex SHA-256 digest of the kind and the ordered semantic fields.
// Fields are length-prefixed so a "|" inside a prompt cannot shift boundaries.
func (d Descriptor) Key() string {
	fields := d.fields()
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, string(d.Kind))
	for _, f := range fields {
		parts = append(parts, strconv.Itoa(len(f))+":"+f)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
