package provider

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// VoiceSelector picks a TTS voice from the language of the narration.
type VoiceSelector struct {
	tags     []language.Tag
	voices   []string
	matcher  language.Matcher
	fallback string
}

// NewVoiceSelector maps languages to voices. fallback is used when the
// narration language has no voice of its own.
func NewVoiceSelector(voices map[language.Tag]string, fallback string) *VoiceSelector {
	s := &VoiceSelector{fallback: fallback}
	for tag, voice := range voices {
		if voice == "" {
			continue
		}
		s.tags = append(s.tags, tag)
		s.voices = append(s.voices, voice)
	}
	if len(s.tags) > 0 {
		s.matcher = language.NewMatcher(s.tags)
	}
	return s
}

// Language detects the narration language. Devanagari text is Hindi.
func (s *VoiceSelector) Language(text string) language.Tag {
	if strings.TrimSpace(text) == "" {
		return language.Und
	}
	if whatlanggo.DetectScript(text) == unicode.Devanagari {
		return language.Hindi
	}

	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return language.Und
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und
	}
	return tag
}

// Voice returns the voice for text.
func (s *VoiceSelector) Voice(text string) string {
	if s.matcher == nil {
		return s.fallback
	}
	tag := s.Language(text)
	if tag == language.Und {
		return s.fallback
	}
	_, index, confidence := s.matcher.Match(tag)
	if confidence == language.No {
		return s.fallback
	}
	return s.voices[index]
}
