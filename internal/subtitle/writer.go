package subtitle

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/file"
)

// Encode renders f in SRT format.
func Encode(f *File) ([]byte, error) {
	if f == nil || len(f.Lines) == 0 {
		return nil, fmt.Errorf("subtitle data is empty")
	}

	var buf bytes.Buffer
	for _, line := range f.Lines {
		fmt.Fprintf(&buf, "%d\n", line.Index)
		fmt.Fprintf(&buf, "%s --> %s\n", formatDuration(line.StartTime), formatDuration(line.EndTime))
		// A blank line ends a cue, so collapse any inside the text.
		fmt.Fprintf(&buf, "%s\n\n", strings.Join(strings.Fields(line.Text), " "))
	}
	return buf.Bytes(), nil
}

// Write encodes f to path without exposing a partial file.
func Write(path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	return nil
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
