// Package media turns scene images and narration into the final video with ffmpeg.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

type Assembler struct {
	ffmpegCmd  string
	ffprobeCmd string
	fontFile   string
	fontSize   int
	wrapWidth  int
	fps        int
}

func NewAssembler(opts Options) *Assembler {
	a := &Assembler{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		fontFile:   opts.FontFile,
		fontSize:   DefaultFontSize,
		wrapWidth:  DefaultWrapWidth,
		fps:        DefaultFPS,
	}
	if opts.FFmpegPath != "" {
		a.ffmpegCmd = opts.FFmpegPath
	}
	if opts.FFprobePath != "" {
		a.ffprobeCmd = opts.FFprobePath
	}
	if opts.FontSize > 0 {
		a.fontSize = opts.FontSize
	}
	if opts.WrapWidth > 0 {
		a.wrapWidth = opts.WrapWidth
	}
	if opts.FPS > 0 {
		a.fps = opts.FPS
	}
	return a
}

// Available reports whether both binaries can be found.
func (a *Assembler) Available() error {
	for _, cmd := range []string{a.ffmpegCmd, a.ffprobeCmd} {
		if _, err := exec.LookPath(cmd); err != nil {
			return err
		}
	}
	return nil
}

// OverlaySubtitles burns text onto the bottom of the image over a translucent
// band. The result is written next to the source as sub_<name>.
func (a *Assembler) OverlaySubtitles(ctx context.Context, imagePath, text string) (string, error) {
	lines := Wrap(text, a.wrapWidth)
	if len(lines) == 0 {
		return imagePath, nil
	}

	textFile := file.ReplaceExt(file.WithPrefix(imagePath, "sub_"), ".txt")
	if err := os.WriteFile(textFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", fmt.Errorf("failed to write subtitle text: %w", err)
	}
	defer os.Remove(textFile)

	output := file.WithPrefix(imagePath, "sub_")
	if err := a.run(ctx, a.ffmpegCmd, a.overlayArgs(imagePath, textFile, len(lines), output)...); err != nil {
		return "", fmt.Errorf("subtitle overlay failed: %w", err)
	}
	return output, nil
}

// BuildClip loops the image for the duration of the audio.
func (a *Assembler) BuildClip(ctx context.Context, imagePath, audioPath string) (Clip, error) {
	duration, err := a.probeDuration(ctx, audioPath)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to read narration length: %w", err)
	}

	output := file.ReplaceExt(file.WithPrefix(imagePath, "clip_"), ".mp4")
	if err := a.run(ctx, a.ffmpegCmd, a.clipArgs(imagePath, audioPath, duration, output)...); err != nil {
		return Clip{}, fmt.Errorf("clip build failed: %w", err)
	}

	return Clip{
		Path:     output,
		Image:    imagePath,
		Audio:    audioPath,
		Duration: duration,
	}, nil
}

// Concatenate joins clips in order into output.
func (a *Assembler) Concatenate(ctx context.Context, clips []Clip, output string) (string, error) {
	if len(clips) == 0 {
		return "", fmt.Errorf("no clips to assemble")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var list strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip.Path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve clip path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	listFile := file.ReplaceExt(output, ".concat.txt")
	if err := os.WriteFile(listFile, []byte(list.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listFile)

	if err := a.run(ctx, a.ffmpegCmd, a.concatArgs(listFile, output)...); err != nil {
		return "", fmt.Errorf("video assembly failed: %w", err)
	}

	log.Info("Assembled %d clips into %s", len(clips), output)
	return output, nil
}

func (a *Assembler) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmdPath, err := exec.LookPath(a.ffprobeCmd)
	if err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, a.probeArgs(path)...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", path, err)
		return 0, err
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid duration %q", probeResult.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (a *Assembler) run(ctx context.Context, name string, args ...string) error {
	cmdPath, err := exec.LookPath(name)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail(string(out), 400))
	}
	return nil
}

func (a *Assembler) probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
}

func (a *Assembler) overlayArgs(imagePath, textFile string, lineCount int, output string) []string {
	lineHeight := a.fontSize + 15
	boxHeight := lineCount*lineHeight + 20

	drawtext := []string{
		"textfile=" + quoteFilterValue(textFile),
		"fontsize=" + strconv.Itoa(a.fontSize),
		"fontcolor=white",
		"shadowcolor=black",
		"shadowx=2",
		"shadowy=2",
		"line_spacing=15",
		"x=(w-text_w)/2",
		fmt.Sprintf("y=h-%d", boxHeight+10),
	}
	if a.fontFile != "" {
		drawtext = append(drawtext, "fontfile="+quoteFilterValue(a.fontFile))
	}

	filter := fmt.Sprintf("drawbox=x=0:y=ih-%d-20:w=iw:h=%d:color=black@0.63:t=fill,drawtext=%s",
		boxHeight, boxHeight, strings.Join(drawtext, ":"))

	return []string{
		"-y",
		"-i", imagePath,
		"-vf", filter,
		"-frames:v", "1",
		output,
	}
}

func (a *Assembler) clipArgs(imagePath, audioPath string, duration time.Duration, output string) []string {
	fps := strconv.Itoa(a.fps)
	return []string{
		"-y",
		"-loop", "1",
		"-framerate", fps,
		"-i", imagePath,
		"-i", audioPath,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-c:a", "aac",
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 3, 64),
		"-shortest",
		output,
	}
}

func (a *Assembler) concatArgs(listFile, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
}

// Wrap breaks text into lines of at most width runes, splitting on spaces.
// Words longer than width are cut.
func Wrap(text string, width int) []string {
	if width <= 0 {
		width = DefaultWrapWidth
	}

	var lines []string
	var current []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(current) > 0 {
				lines = append(lines, string(current))
				current = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		if len(w) == 0 {
			continue
		}
		switch {
		case len(current) == 0:
			current = w
		case len(current)+1+len(w) <= width:
			current = append(append(current, ' '), w...)
		default:
			lines = append(lines, string(current))
			current = w
		}
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}

func quoteFilterValue(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
