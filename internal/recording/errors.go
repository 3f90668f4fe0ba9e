package recording

import "fmt"

// Code classifies a recording failure.
type Code int

const (
	CodeUnknown Code = iota
	CodePermissionDenied
	CodeNotEnoughStorage
	CodeAlreadyStarted
	CodeNotCurrentlyRecording
	CodeCantEditWhileRecording
	CodeCameraIDNotFound
	CodeMonitorIDNotFound
	CodeRecordingError
	CodeGalleryCopyFailure
)

var codeNames = map[Code]string{
	CodeUnknown:                "unknown_error",
	CodePermissionDenied:       "permission_denied",
	CodeNotEnoughStorage:       "not_enough_storage",
	CodeAlreadyStarted:         "recording_already_started",
	CodeNotCurrentlyRecording:  "not_currently_recording",
	CodeCantEditWhileRecording: "cant_edit_settings_while_recording",
	CodeCameraIDNotFound:       "camera_id_not_found",
	CodeMonitorIDNotFound:      "monitor_id_not_found",
	CodeRecordingError:         "recording_error",
	CodeGalleryCopyFailure:     "gallery_copy_failure",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the result error returned and delivered by the orchestrator.
// errors.Is matches any *Error with the same Code, so the Err sentinels
// below work regardless of Message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied}
	ErrNotEnoughStorage       = &Error{Code: CodeNotEnoughStorage}
	ErrAlreadyStarted         = &Error{Code: CodeAlreadyStarted}
	ErrNotCurrentlyRecording  = &Error{Code: CodeNotCurrentlyRecording}
	ErrCantEditWhileRecording = &Error{Code: CodeCantEditWhileRecording}
	ErrCameraIDNotFound       = &Error{Code: CodeCameraIDNotFound}
	ErrMonitorIDNotFound      = &Error{Code: CodeMonitorIDNotFound}
	ErrRecording              = &Error{Code: CodeRecordingError}
	ErrGalleryCopy            = &Error{Code: CodeGalleryCopyFailure}
	ErrUnknown                = &Error{Code: CodeUnknown}
)
