package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lck-sdk/recorder/internal/audio/device"
	"github.com/lck-sdk/recorder/internal/config"
	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/logging"
	"github.com/lck-sdk/recorder/internal/native"
	"github.com/lck-sdk/recorder/internal/storage"
)

var (
	version = "0.1.0"
	cfgFile string

	recordDuration time.Duration
	recordMic      bool
	previewPath    string
)

var rootCmd = &cobra.Command{
	Use:   "lck-recorder",
	Short: "LCK gameplay recorder",
	Long:  `lck-recorder - records a rendered camera and mixed game and microphone audio into a video file and saves it to the gallery`,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the test pattern camera with device audio",
	Run: func(cmd *cobra.Command, args []string) {
		runRecord()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture and playback devices",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Summarize a recording written by the built-in encoder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		inspectFile(args[0])
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		printConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lck-recorder v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check recording readiness",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/lck/recorder.yaml)")

	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 10*time.Second, "how long to record")
	recordCmd.Flags().BoolVar(&recordMic, "mic", true, "record the microphone")
	recordCmd.Flags().StringVar(&previewPath, "preview", "", "write the last rendered frame to this PNG file")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config and initializes logging. The
// returned closer flushes the log file.
func loadConfig() (*config.Config, func()) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	out, closer, err := logging.Output(logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	var attrs []slog.Attr
	if cfg.TrackingID != "" {
		attrs = append(attrs, slog.String(logging.KeyTracking, cfg.TrackingID))
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out, attrs...)

	// Validate logs every finding and clamps what it can; fatals remain.
	cfg.Validate()
	if res := cfg.ValidateTiered(); res.HasFatals() {
		for _, err := range res.Fatals {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		}
		_ = closer.Close()
		os.Exit(1)
	}

	return cfg, func() { _ = closer.Close() }
}

func listDevices() {
	infos, err := device.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
		os.Exit(1)
	}
	if err := yaml.NewEncoder(os.Stdout).Encode(infos); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspectFile(path string) {
	sum, err := native.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(sum); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printConfig() {
	cfg, closeLog := loadConfig()
	defer closeLog()

	// Credentials are not printed.
	redacted := *cfg
	redacted.Gallery.S3.SecretKey = redact(redacted.Gallery.S3.SecretKey)
	redacted.Gallery.Azure.ConnectionString = redact(redacted.Gallery.Azure.ConnectionString)
	redacted.Gallery.B2.ApplicationKey = redact(redacted.Gallery.B2.ApplicationKey)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func checkStatus() {
	cfg, closeLog := loadConfig()
	defer closeLog()

	mon := health.NewMonitor()
	w := storage.NewWatcher(cfg.Recording.TempDir, cfg.Storage.MinFreeMB<<20,
		time.Duration(cfg.Storage.CheckIntervalSeconds)*time.Second, storage.WithHealth(mon))

	lib, err := native.Open(cfg.Encoder.LibraryPath)
	if err != nil {
		mon.Update(health.Encoder, health.Unhealthy, err.Error())
	} else {
		mon.Update(health.Encoder, health.Healthy, "encoder "+lib.Name())
	}

	if w.HasEnoughFreeStorage() {
		if free, ok := w.Free(); ok {
			fmt.Printf("Free space: %d MB in %s\n", free>>20, cfg.Recording.TempDir)
		}
	}

	if err := yaml.NewEncoder(os.Stdout).Encode(mon.Summary()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if mon.Overall() == health.Unhealthy {
		os.Exit(1)
	}
}
