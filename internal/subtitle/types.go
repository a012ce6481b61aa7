// Package subtitle writes SRT caption files for finished videos.
package subtitle

import "time"

// Line is one caption cue.
type Line struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// File is an ordered list of cues.
type File struct {
	Lines []Line
}

// Sequence lays texts end to end, each lasting its matching duration.
// Cues are numbered from 1 as SRT requires.
func Sequence(texts []string, durations []time.Duration) *File {
	n := len(texts)
	if len(durations) < n {
		n = len(durations)
	}

	f := &File{Lines: make([]Line, 0, n)}
	var start time.Duration
	for i := 0; i < n; i++ {
		end := start + durations[i]
		f.Lines = append(f.Lines, Line{
			Index:     i + 1,
			StartTime: start,
			EndTime:   end,
			Text:      texts[i],
		})
		start = end
	}
	return f
}
