package media

import "time"

const (
	DefaultFontSize  = 40
	DefaultWrapWidth = 50
	DefaultFPS       = 24
)

// Clip is one rendered scene: a still image looped for the length of its narration.
type Clip struct {
	Path     string
	Image    string
	Audio    string
	Duration time.Duration
}

// Options configures the ffmpeg based assembler. Empty fields take defaults.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	// FontFile is passed to drawtext; empty lets ffmpeg pick its default font.
	FontFile  string
	FontSize  int
	WrapWidth int
	FPS       int
}
