package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates findings that must stop startup from ones that
// were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns all errors found, logging each one
// as a warning.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}

// ValidateTiered checks the config. Values that would break the encoder or
// the frame pacer are clamped to safe bounds and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.TrackingID != "" {
		if _, err := uuid.Parse(c.TrackingID); err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("tracking_id %q is not a valid UUID", c.TrackingID))
		}
	}

	if c.Recording.FilenamePrefix == "" || strings.ContainsAny(c.Recording.FilenamePrefix, `/\:*?"<>|`) {
		r.Fatals = append(r.Fatals, fmt.Errorf("recording.filename_prefix %q is not a usable file name", c.Recording.FilenamePrefix))
	}
	if c.Recording.TempDir == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("recording.temp_dir must be set"))
	}
	if c.Recording.DateFormat == "" {
		r.Warnings = append(r.Warnings, fmt.Errorf("recording.date_format is empty, using default"))
		c.Recording.DateFormat = Default().Recording.DateFormat
	} else if strings.ContainsAny(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(c.Recording.DateFormat), `/\:`) {
		r.Fatals = append(r.Fatals, fmt.Errorf("recording.date_format %q produces path separators", c.Recording.DateFormat))
	}

	c.Camera.Framerate = clampUint(&r, "camera.framerate", c.Camera.Framerate, 1, 240)
	c.Camera.Width = clampUint(&r, "camera.width", c.Camera.Width, 16, 7680)
	c.Camera.Height = clampUint(&r, "camera.height", c.Camera.Height, 16, 4320)
	c.Camera.Bitrate = clampUint(&r, "camera.bitrate", c.Camera.Bitrate, 64<<10, 200<<20)

	c.Audio.SampleRate = clampUint(&r, "audio.sample_rate", c.Audio.SampleRate, 8000, 192000)
	c.Audio.Channels = clampUint(&r, "audio.channels", c.Audio.Channels, 1, 8)
	c.Audio.Bitrate = clampUint(&r, "audio.bitrate", c.Audio.Bitrate, 32<<10, 10<<20)
	if c.Audio.BufferFrames < 64 {
		r.Warnings = append(r.Warnings, fmt.Errorf("audio.buffer_frames %d is below minimum 64, clamping", c.Audio.BufferFrames))
		c.Audio.BufferFrames = 64
	} else if c.Audio.BufferFrames > 8192 {
		r.Warnings = append(r.Warnings, fmt.Errorf("audio.buffer_frames %d exceeds maximum 8192, clamping", c.Audio.BufferFrames))
		c.Audio.BufferFrames = 8192
	}

	if c.Storage.CheckIntervalSeconds < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("storage.check_interval_seconds %d is below minimum 1, clamping", c.Storage.CheckIntervalSeconds))
		c.Storage.CheckIntervalSeconds = 1
	} else if c.Storage.CheckIntervalSeconds > 3600 {
		r.Warnings = append(r.Warnings, fmt.Errorf("storage.check_interval_seconds %d exceeds maximum 3600, clamping", c.Storage.CheckIntervalSeconds))
		c.Storage.CheckIntervalSeconds = 3600
	}

	if c.Gallery.S3.Bucket != "" && c.Gallery.S3.Region == "" {
		r.Warnings = append(r.Warnings, fmt.Errorf("gallery.s3.region is empty, the SDK default chain will be used"))
	}
	if (c.Gallery.Azure.ConnectionString == "") != (c.Gallery.Azure.Container == "") {
		r.Fatals = append(r.Fatals, fmt.Errorf("gallery.azure requires both connection_string and container"))
	}
	if c.Gallery.B2.Bucket != "" && (c.Gallery.B2.AccountID == "" || c.Gallery.B2.ApplicationKey == "") {
		r.Fatals = append(r.Fatals, fmt.Errorf("gallery.b2 requires account_id and application_key"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}

func clampUint(r *ValidationResult, name string, v, lo, hi uint32) uint32 {
	switch {
	case v < lo:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", name, v, lo))
		return lo
	case v > hi:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", name, v, hi))
		return hi
	}
	return v
}
