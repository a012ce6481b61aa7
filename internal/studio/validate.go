package studio

import (
	"strings"
	"unicode/utf8"
)

const (
	minTopicLength = 5
	maxTopicLength = 200
)

var prohibitedKeywords = []string{
	"explicit", "violence", "gore", "porn", "nsfw",
	"kill", "murder", "death", "blood",
}

// ValidateTopic checks a user topic before any quota or provider is touched.
func ValidateTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return NewError(ErrValidation, "topic cannot be empty")
	}

	n := utf8.RuneCountInString(topic)
	if n < minTopicLength {
		return NewError(ErrValidation, "topic is too short").WithContext("min", minTopicLength)
	}
	if n > maxTopicLength {
		return NewError(ErrValidation, "topic is too long").WithContext("max", maxTopicLength)
	}

	lower := strings.ToLower(topic)
	for _, keyword := range prohibitedKeywords {
		if strings.Contains(lower, keyword) {
			return NewError(ErrValidation, "topic contains inappropriate content").WithContext("keyword", keyword)
		}
	}
	return nil
}
