package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/mythos-studio/internal/character"
)

type fakeDescriber map[string]character.Character

func (f fakeDescriber) Describe(path string) (character.Character, bool) {
	ch, ok := f[path]
	return ch, ok
}

func TestBuildImagePrompt(t *testing.T) {
	plain := BuildImagePrompt("a temple at dawn", 5, nil)
	assert.Contains(t, plain, "a temple at dawn")
	assert.Contains(t, plain, CameraPresets[1])
	assert.NotContains(t, plain, "reference")

	shiva := &character.Character{Name: "Shiva", Attributes: "third eye"}
	withRef := BuildImagePrompt("meditating", 3, shiva)
	assert.Contains(t, withRef, "Shiva, maintaining exact same facial features as reference")
	assert.Contains(t, withRef, "third eye")
	assert.Contains(t, withRef, CameraPresets[3])

	generic := BuildImagePrompt("meditating", 0, &character.Character{Name: "Ganesha"})
	assert.Contains(t, generic, character.GenericAttributes)
}

func TestCameraPreset_Rotates(t *testing.T) {
	for i := 0; i < 8; i++ {
		assert.Equal(t, CameraPresets[i%4], CameraPreset(i))
	}
}

func TestImageClient_GenerateWritesBase64(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString([]byte("png-bytes")))
	}))
	defer server.Close()

	client, err := NewImageClient(Config{APIKey: "test-key", BaseURL: server.URL}, "dall-e-3")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "job", "scene_0.png")
	path, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "Kailash", SceneIndex: 0, OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, out, path)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	assert.Equal(t, "dall-e-3", body["model"])
	assert.Equal(t, "1024x1024", body["size"])
	assert.Equal(t, "b64_json", body["response_format"])
	assert.Contains(t, body["prompt"], CameraPresets[0])
}

func TestImageClient_EditWithReferenceDownloadsURL(t *testing.T) {
	var mux http.ServeMux
	server := httptest.NewServer(&mux)
	defer server.Close()

	var prompt string
	mux.HandleFunc("/images/edits", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		prompt = r.FormValue("prompt")
		assert.Equal(t, "gpt-image-1", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"url":%q}]}`, server.URL+"/files/out.png")
	})
	mux.HandleFunc("/files/out.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("edited"))
	})

	ref := filepath.Join(t.TempDir(), "Shiva.png")
	require.NoError(t, os.WriteFile(ref, []byte("reference"), 0644))

	client, err := NewImageClient(Config{APIKey: "k", BaseURL: server.URL + "/"}, "dall-e-3",
		WithCharacters(fakeDescriber{ref: {Name: "Shiva", Attributes: "crescent moon"}}))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "scene_2.png")
	_, err = client.GenerateImage(context.Background(), ImageRequest{Prompt: "on Kailash", Reference: ref, SceneIndex: 2, OutputPath: out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))
	assert.Contains(t, prompt, "Shiva, maintaining exact same facial features")
	assert.Contains(t, prompt, "crescent moon")
	assert.Contains(t, prompt, CameraPresets[2])
}

func TestImageClient_ServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := NewImageClient(Config{APIKey: "k", BaseURL: server.URL}, "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "scene_0.png")
	_, err = client.GenerateImage(context.Background(), ImageRequest{Prompt: "x", OutputPath: out})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.NoFileExists(t, out)
}

func TestNewClients_RequireAPIKey(t *testing.T) {
	_, err := NewImageClient(Config{}, "")
	assert.Error(t, err)
	_, err = NewSpeechClient(Config{}, "", nil)
	assert.Error(t, err)
}

func TestSpeechClient_GenerateAudio(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	client, err := NewSpeechClient(Config{APIKey: "k", BaseURL: server.URL}, "tts-1", nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "audio_1.mp3")
	path, err := client.GenerateAudio(context.Background(), SpeechRequest{Text: "Om Namah Shivaya", Voice: "onyx", SceneIndex: 1, OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, out, path)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))
	assert.Equal(t, "Om Namah Shivaya", body["input"])
	assert.Equal(t, "onyx", body["voice"])
	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "mp3", body["response_format"])
}

func TestSpeechClient_RejectsEmptyText(t *testing.T) {
	client, err := NewSpeechClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, "", nil)
	require.NoError(t, err)
	_, err = client.GenerateAudio(context.Background(), SpeechRequest{Voice: "alloy", OutputPath: filepath.Join(t.TempDir(), "a.mp3")})
	assert.Error(t, err)
}

func TestVoiceSelector(t *testing.T) {
	s := NewVoiceSelector(map[language.Tag]string{
		language.English: "alloy",
		language.Hindi:   "onyx",
	}, "alloy")

	assert.Equal(t, "onyx", s.Voice("भगवान शिव कैलाश पर्वत पर ध्यान में बैठे हैं"))
	assert.Equal(t, language.Hindi, s.Language("हनुमान जी"))
	assert.Equal(t, "alloy", s.Voice("Lord Shiva sits in deep meditation on the snowy peaks of Mount Kailash"))
	assert.Equal(t, "alloy", s.Voice(""))

	empty := NewVoiceSelector(nil, "echo")
	assert.Equal(t, "echo", empty.Voice("भगवान शिव"))
}
