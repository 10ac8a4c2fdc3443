package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/mattn/go-shellwords"
	"golang.org/x/text/language"
)

// audioPlaceholder in the command is replaced by the wav path. Without it the
// path is passed as --audio.
const audioPlaceholder = "{audio}"

// execRecognizer runs an external transcriber once per request. The tool
// receives a 16-bit wav file and prints either {"text":..,"confidence":..}
// or plain text on stdout.
type execRecognizer struct {
	argv     []string
	model    string
	lang     string
	partials bool
	mu       sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("stt command is empty")
	}
	return &execRecognizer{
		argv:     args,
		model:    cfg.ModelPath,
		lang:     baseLanguage(cfg.Language),
		partials: cfg.PublishInterim,
	}, nil
}

// baseLanguage reduces a BCP 47 tag such as ru-RU to the bare language code
// transcribers expect.
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := parsed.Base()
	return base.String()
}

func (r *execRecognizer) args(wavPath string, final bool) []string {
	out := make([]string, 0, len(r.argv)+7)
	substituted := false
	for _, a := range r.argv[1:] {
		if strings.Contains(a, audioPlaceholder) {
			a = strings.ReplaceAll(a, audioPlaceholder, wavPath)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, "--audio", wavPath)
	}
	if r.model != "" {
		out = append(out, "--model", r.model)
	}
	if r.lang != "" {
		out = append(out, "--language", r.lang)
	}
	if r.partials && !final {
		out = append(out, "--partial")
	}
	return out
}

func (r *execRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp("", "loqa_dictate_*.wav")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, sampleRate, channels); err != nil {
		return TranscriptResult{}, err
	}

	command := exec.CommandContext(ctx, r.argv[0], r.args(file.Name(), final)...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseExecOutput(stdout.Bytes())
}

func parseExecOutput(out []byte) (TranscriptResult, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return TranscriptResult{}, nil
	}
	if trimmed[0] != '{' {
		return TranscriptResult{Text: string(trimmed)}, nil
	}
	var resp execResult
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
	}
	return TranscriptResult{Text: strings.TrimSpace(resp.Text), Confidence: resp.Confidence}, nil
}

// writePCMToWav encodes little-endian 16-bit PCM.
func writePCMToWav(w io.WriteSeeker, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return errors.New("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
