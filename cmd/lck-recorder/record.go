package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lck-sdk/recorder/internal/audio"
	"github.com/lck-sdk/recorder/internal/audio/device"
	"github.com/lck-sdk/recorder/internal/camera"
	"github.com/lck-sdk/recorder/internal/gallery"
	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/hub"
	"github.com/lck-sdk/recorder/internal/logging"
	"github.com/lck-sdk/recorder/internal/native"
	"github.com/lck-sdk/recorder/internal/recorder"
	"github.com/lck-sdk/recorder/internal/recording"
	"github.com/lck-sdk/recorder/internal/storage"
)

var log = logging.L("main")

const (
	tickRate        = 60
	shutdownTimeout = 30 * time.Second
)

func runRecord() {
	cfg, closeLog := loadConfig()
	defer closeLog()

	mon := health.NewMonitor()
	watcher := storage.NewWatcher(cfg.Recording.TempDir, cfg.Storage.MinFreeMB<<20,
		time.Duration(cfg.Storage.CheckIntervalSeconds)*time.Second, storage.WithHealth(mon))

	sink, err := gallery.FromConfig(context.Background(), cfg.Gallery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure gallery: %v\n", err)
		os.Exit(1)
	}
	if m, ok := sink.(*gallery.Mirror); ok {
		m.WithHealth(mon)
	}

	lib, err := native.Open(cfg.Encoder.LibraryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load encoder: %v\n", err)
		os.Exit(1)
	}
	rec := recorder.New(lib, sink, recorder.Options{
		TempDir:    cfg.Recording.TempDir,
		Prefix:     cfg.Recording.FilenamePrefix,
		DateFormat: cfg.Recording.DateFormat,
		Album:      cfg.Recording.AlbumName,
		Health:     mon,
	})

	devCfg := device.Config{
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
		BufferFrames: cfg.Audio.BufferFrames,
		Microphone:   cfg.Audio.CaptureMicrophone && recordMic,
		Loopback:     cfg.Audio.CaptureLoopback,
	}
	reg := audio.NewRegistry(devCfg.ChunkSize())
	engine, err := device.Open(devCfg, reg)
	if err != nil {
		log.Warn("audio devices unavailable, recording silence", "error", err.Error())
		mon.Update(health.Audio, health.Degraded, err.Error())
		reg.NewMic = nil
	} else {
		defer engine.Close()
		mon.Update(health.Audio, health.Healthy, "capturing")
	}

	platform := audio.DetectHost()
	mixer := audio.NewMixer(reg, platform, audio.WithNativeMicrophone(rec.SetMicrophoneOpen))

	h := hub.New()
	if err := h.RegisterCamera(camera.NewTestPattern("test-pattern")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register camera: %v\n", err)
		os.Exit(1)
	}
	preview := camera.NewPreview("preview")

	// Callbacks run on this goroutine from orch.Tick.
	done := make(chan struct{})
	finished := false
	var result error
	finish := func(err error) {
		if finished {
			return
		}
		finished = true
		result = err
		close(done)
	}
	orch := recording.New(h, mixer, rec, watcher, recording.Options{
		Camera: recording.CameraTrack{
			Width:     cfg.Camera.Width,
			Height:    cfg.Camera.Height,
			Bitrate:   cfg.Camera.Bitrate,
			Framerate: cfg.Camera.Framerate,
		},
		Audio: recording.AudioTrack{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Bitrate:    cfg.Audio.Bitrate,
		},
		Platform: platform,
		Callbacks: recording.Callbacks{
			OnRecordingStarted: func(err error) {
				if err != nil {
					finish(err)
					return
				}
				fmt.Printf("Recording for %s\n", recordDuration)
			},
			OnRecordingStopped: func(reason recording.StopReason, err error) {
				log.Info("recording stopped", "reason", reason.String())
				if err != nil {
					finish(err)
				}
			},
			OnLowStorageSpace: func(err error) {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			},
			OnRecordingSaved: func(saved recording.Saved, err error) {
				if err == nil {
					fmt.Printf("Saved %s (%s)\n", saved.FilePath, saved.Duration.Round(time.Millisecond))
				}
				finish(err)
			},
		},
	})
	if err := h.RegisterMonitor(preview); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register preview: %v\n", err)
		os.Exit(1)
	}
	if err := orch.SetMicrophoneCaptureActive(recordMic); err != nil {
		log.Warn("microphone unavailable", "error", err.Error())
	}

	if err := orch.StartRecording(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start recording: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	var quitting bool
	var deadline time.Time
loop:
	for {
		select {
		case <-done:
			break loop
		case <-sigChan:
			fmt.Println("\nStopping recording...")
			quitting = true
		case now := <-ticker.C:
			orch.Tick(now)
			if orch.State() != recording.Recording {
				break
			}
			if quitting {
				h.Notify(hub.Quit)
			} else if d, err := orch.RecordingDuration(); err == nil && d >= recordDuration {
				if err := orch.StopRecording(recording.UserRequested); err != nil {
					log.Warn("stop rejected", "error", err.Error())
				}
			}
			if orch.State() == recording.PendingStop && deadline.IsZero() {
				deadline = now.Add(shutdownTimeout)
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			finish(fmt.Errorf("timed out waiting for the recording to be saved"))
		}
	}

	if previewPath != "" {
		if err := preview.SavePNG(previewPath); err != nil {
			log.Warn("failed to write preview", "error", err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	orch.Close(ctx)

	for _, c := range mon.All() {
		if c.Status != health.Healthy {
			log.Warn("component not healthy", "component", c.Name, "status", string(c.Status), "message", c.Message)
		}
	}

	if result != nil {
		fmt.Fprintf(os.Stderr, "Recording failed: %v\n", result)
		os.Exit(1)
	}
}
