package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	TrackingID string `mapstructure:"tracking_id" yaml:"tracking_id"`

	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Encoder   EncoderConfig   `mapstructure:"encoder" yaml:"encoder"`
	Gallery   GalleryConfig   `mapstructure:"gallery" yaml:"gallery"`

	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

// CameraConfig is the video track descriptor used for new recordings.
type CameraConfig struct {
	Width     uint32 `mapstructure:"width" yaml:"width"`
	Height    uint32 `mapstructure:"height" yaml:"height"`
	Bitrate   uint32 `mapstructure:"bitrate" yaml:"bitrate"`
	Framerate uint32 `mapstructure:"framerate" yaml:"framerate"`
}

type AudioConfig struct {
	SampleRate   uint32 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels     uint32 `mapstructure:"channels" yaml:"channels"`
	Bitrate      uint32 `mapstructure:"bitrate" yaml:"bitrate"`
	BufferFrames int    `mapstructure:"buffer_frames" yaml:"buffer_frames"`
	// Devices
	CaptureMicrophone bool `mapstructure:"capture_microphone" yaml:"capture_microphone"`
	CaptureLoopback   bool `mapstructure:"capture_loopback" yaml:"capture_loopback"`
}

type RecordingConfig struct {
	FilenamePrefix string `mapstructure:"filename_prefix" yaml:"filename_prefix"`
	AlbumName      string `mapstructure:"album_name" yaml:"album_name"`
	// DateFormat is a Go time layout appended to the prefix.
	DateFormat string `mapstructure:"date_format" yaml:"date_format"`
	TempDir    string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type StorageConfig struct {
	MinFreeMB            uint64 `mapstructure:"min_free_mb" yaml:"min_free_mb"`
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds" yaml:"check_interval_seconds"`
}

// EncoderConfig selects the native encoder library. An empty LibraryPath
// uses the built-in file encoder.
type EncoderConfig struct {
	LibraryPath string `mapstructure:"library_path" yaml:"library_path"`
}

type GalleryConfig struct {
	VideosDir string      `mapstructure:"videos_dir" yaml:"videos_dir"`
	S3        S3Config    `mapstructure:"s3" yaml:"s3"`
	GCS       GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
	Azure     AzureConfig `mapstructure:"azure" yaml:"azure"`
	B2        B2Config    `mapstructure:"b2" yaml:"b2"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	Container        string `mapstructure:"container" yaml:"container"`
}

type B2Config struct {
	AccountID      string `mapstructure:"account_id" yaml:"account_id"`
	ApplicationKey string `mapstructure:"application_key" yaml:"application_key"`
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
}

func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Width:     1280,
			Height:    720,
			Bitrate:   5 << 20,
			Framerate: 30,
		},
		Audio: AudioConfig{
			SampleRate:        48000,
			Channels:          2,
			Bitrate:           1 << 20,
			BufferFrames:      512,
			CaptureMicrophone: true,
			CaptureLoopback:   true,
		},
		Recording: RecordingConfig{
			FilenamePrefix: "MyGame",
			AlbumName:      "MyGameAlbum",
			DateFormat:     "2006-01-02_15-04-05",
			TempDir:        filepath.Join(os.TempDir(), "lck"),
		},
		Storage: StorageConfig{
			MinFreeMB:            500,
			CheckIntervalSeconds: 5,
		},
		Gallery: GalleryConfig{
			VideosDir: defaultVideosDir(),
		},
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("recorder")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LCK")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("tracking_id", cfg.TrackingID)
	viper.Set("camera", cfg.Camera)
	viper.Set("audio", cfg.Audio)
	viper.Set("recording", cfg.Recording)
	viper.Set("storage", cfg.Storage)
	viper.Set("encoder", cfg.Encoder)
	viper.Set("gallery", cfg.Gallery)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "recorder.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Gallery credentials live in this file.
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "lck")
	}
	return "."
}

func defaultVideosDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "Videos")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Movies")
	default:
		return filepath.Join(home, "Videos")
	}
}
