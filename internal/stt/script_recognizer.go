package stt

import (
	"context"
	"strings"
	"time"
)

// WordDuration is how much audio the script recognizer needs per revealed word.
const WordDuration = 400 * time.Millisecond

// scriptRecognizer "hears" a fixed utterance, revealing one more word for
// every WordDuration of audio. It drives demos and tests without a model.
type scriptRecognizer struct {
	words []string
}

func NewScriptRecognizer(script string) Recognizer {
	return &scriptRecognizer{words: strings.Fields(script)}
}

func (r *scriptRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	if final {
		return TranscriptResult{Text: strings.Join(r.words, " "), Confidence: 1}, nil
	}
	bytesPerWord := int(int64(sampleRate*channels*2) * int64(WordDuration) / int64(time.Second))
	if bytesPerWord <= 0 {
		return TranscriptResult{}, nil
	}
	n := (len(pcm) + bytesPerWord - 1) / bytesPerWord
	if n > len(r.words) {
		n = len(r.words)
	}
	return TranscriptResult{Text: strings.Join(r.words[:n], " "), Confidence: 0.5}, nil
}
