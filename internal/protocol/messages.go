package protocol

import "time"

// AudioFrame represents PCM audio data streamed from edge devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents STT output broadcast on the bus. Each partial is the
// recognizer's full current hypothesis for the utterance, not a delta.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Revision   uint64    `json:"revision"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// DictationUpdate carries the reconstructed text of a session after a transcript was applied.
type DictationUpdate struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Committed string    `json:"committed"`
	Final     bool      `json:"final"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// Delivery is finished text handed to the output target.
type Delivery struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel,omitempty"`
	Text      string    `json:"text"`
	Editable  bool      `json:"editable,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Cue asks an external player to signal a dictation event to the user.
type Cue struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Control is a command from the mode switcher or overlay.
type Control struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Channel   string `json:"channel,omitempty"`
}

const (
	CueSendingStarted   = "sending_started"
	CueSendingComplete  = "sending_complete"
	CueSendingError     = "sending_error"
	CueEditingCancelled = "editing_cancelled"
)

const (
	ControlStart  = "start"
	ControlReset  = "reset"
	ControlSend   = "send"
	ControlCancel = "cancel"
)

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectTranscriptAll     = "stt.text.*"
	SubjectDictationUpdate   = "dictation.text.update"
	SubjectDictationSent     = "dictation.text.sent"
	SubjectDictationCue      = "dictation.cue"
	SubjectDictationControl  = "dictation.control"
)
