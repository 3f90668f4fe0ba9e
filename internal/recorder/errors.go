package recorder

import "errors"

var (
	ErrBusy         = errors.New("recorder: a start or stop is already in progress")
	ErrActive       = errors.New("recorder: a session is already active")
	ErrNotActive    = errors.New("recorder: no active session")
	ErrRecording    = errors.New("recorder: native encoder call failed")
	ErrGalleryCopy  = errors.New("recorder: failed to copy recording to the gallery")
	ErrQueueRefused = errors.New("recorder: background worker refused the task")
	ErrNoVideoTrack = errors.New("recorder: first video track index out of range")
)
