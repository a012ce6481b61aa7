package subtitle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	f := Sequence(
		[]string{"Shiva meditates on Kailash.", "Parvati waits.", "ignored"},
		[]time.Duration{3200 * time.Millisecond, 2500 * time.Millisecond},
	)
	require.Len(t, f.Lines, 2)
	assert.Equal(t, Line{Index: 1, StartTime: 0, EndTime: 3200 * time.Millisecond, Text: "Shiva meditates on Kailash."}, f.Lines[0])
	assert.Equal(t, Line{Index: 2, StartTime: 3200 * time.Millisecond, EndTime: 5700 * time.Millisecond, Text: "Parvati waits."}, f.Lines[1])
}

func TestEncode(t *testing.T) {
	f := Sequence(
		[]string{"गणेश का जन्म", "Line one\n\nline two"},
		[]time.Duration{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, time.Second},
	)

	data, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t,
		"1\n00:00:00,000 --> 01:02:03,045\nगणेश का जन्म\n\n"+
			"2\n01:02:03,045 --> 01:02:04,045\nLine one line two\n\n",
		string(data))

	_, err = Encode(&File{})
	assert.Error(t, err)
	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "job-1.srt")
	require.NoError(t, Write(path, Sequence([]string{"Rama returns."}, []time.Duration{2 * time.Second})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,000\nRama returns.\n\n", string(data))
}
