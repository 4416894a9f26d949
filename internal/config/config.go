package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`

	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Quality    QualityConfig    `yaml:"quality"`
	Continuity ContinuityConfig `yaml:"continuity"`
	Veo        VeoConfig        `yaml:"veo"`
	Storage    StorageConfig    `yaml:"storage"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Brand      BrandConfig      `yaml:"brand"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type FFmpegConfig struct {
	Threads      int     `yaml:"threads"`
	Preset       string  `yaml:"preset"`
	CRF          int     `yaml:"crf"`
	AudioBitrate string  `yaml:"audio_bitrate"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FPS          float64 `yaml:"fps"`
}

// QualityConfig holds the frame quality weights and normalizers.
type QualityConfig struct {
	SharpnessWeight   float64 `yaml:"sharpness_weight"`
	ContrastWeight    float64 `yaml:"contrast_weight"`
	BrightnessWeight  float64 `yaml:"brightness_weight"`
	CompositionWeight float64 `yaml:"composition_weight"`
	SharpnessNorm     float64 `yaml:"sharpness_norm"`
	ContrastNorm      float64 `yaml:"contrast_norm"`
	BrightnessMid     float64 `yaml:"brightness_mid"`
}

type ContinuityConfig struct {
	QualityWeight    float64 `yaml:"quality_weight"`
	ContinuityWeight float64 `yaml:"continuity_weight"`
	Candidates       int     `yaml:"candidates"`
	WindowSeconds    float64 `yaml:"window_seconds"`
}

type VeoConfig struct {
	ProjectID    string        `yaml:"project_id"`
	Location     string        `yaml:"location"`
	Model        string        `yaml:"model"`
	Endpoint     string        `yaml:"endpoint"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

type StorageConfig struct {
	// Scheme used for uploads: gs, s3 or file.
	Scheme    string   `yaml:"scheme"`
	Bucket    string   `yaml:"bucket"`
	LocalRoot string   `yaml:"local_root"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LedgerConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type BrandConfig struct {
	LogoPath            string  `yaml:"logo_path"`
	EndCardPath         string  `yaml:"end_card_path"`
	TransparentLogoPath string  `yaml:"transparent_logo_path"`
	ReferenceLogoPath   string  `yaml:"reference_logo_path"`
	LogoWidth           int     `yaml:"logo_width"`
	Margin              int     `yaml:"margin"`
	EndCardSeconds      float64 `yaml:"end_card_seconds"`
	EndCardColor        string  `yaml:"end_card_color"`
	TransitionSeconds   float64 `yaml:"transition_seconds"`
}

type TrackingConfig struct {
	ModelPath       string  `yaml:"model_path"`
	RuntimeLibrary  string  `yaml:"runtime_library"`
	Classes         []int   `yaml:"classes"`
	Confidence      float64 `yaml:"confidence"`
	NMSThreshold    float64 `yaml:"nms_threshold"`
	ORBFeatures     int     `yaml:"orb_features"`
	MinDescriptors  int     `yaml:"min_descriptors"`
	MinMatches      int     `yaml:"min_matches"`
	RANSACThreshold float64 `yaml:"ransac_threshold"`
}

type PipelineConfig struct {
	CrossfadeSeconds float64       `yaml:"crossfade_seconds"`
	DownloadWorkers  int           `yaml:"download_workers"`
	ThumbnailAt      time.Duration `yaml:"thumbnail_at"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configuration from file or returns defaults. A .env file in the
// working directory is loaded first and environment overrides win over YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	q := c.Quality
	sum := q.SharpnessWeight + q.ContrastWeight + q.BrightnessWeight + q.CompositionWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("quality weights must sum to 1, got %.3f", sum)
	}
	if q.SharpnessNorm <= 0 || q.ContrastNorm <= 0 || q.BrightnessMid <= 0 {
		return fmt.Errorf("quality normalizers must be positive")
	}
	cw := c.Continuity.QualityWeight + c.Continuity.ContinuityWeight
	if cw < 0.999 || cw > 1.001 {
		return fmt.Errorf("continuity weights must sum to 1, got %.3f", cw)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Continuity.Candidates < 1 {
		return fmt.Errorf("continuity.candidates must be at least 1")
	}
	if c.Veo.PollInterval <= 0 || c.Veo.MaxWait < c.Veo.PollInterval {
		return fmt.Errorf("veo.max_wait must be at least one poll interval")
	}
	switch c.Storage.Scheme {
	case "gs", "s3", "file":
	default:
		return fmt.Errorf("unsupported storage scheme %q", c.Storage.Scheme)
	}
	if c.Pipeline.CrossfadeSeconds <= 0 {
		return fmt.Errorf("pipeline.crossfade_seconds must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     os.TempDir(),
		Concurrency: 4,
		FFmpeg: FFmpegConfig{
			Threads:      0,
			Preset:       "veryfast",
			CRF:          18,
			AudioBitrate: "192k",
			Width:        1920,
			Height:       1080,
			FPS:          30,
		},
		Quality: QualityConfig{
			SharpnessWeight:   0.4,
			ContrastWeight:    0.3,
			BrightnessWeight:  0.2,
			CompositionWeight: 0.1,
			SharpnessNorm:     500,
			ContrastNorm:      80,
			BrightnessMid:     127,
		},
		Continuity: ContinuityConfig{
			QualityWeight:    0.6,
			ContinuityWeight: 0.4,
			Candidates:       3,
			WindowSeconds:    3,
		},
		Veo: VeoConfig{
			Location:     "us-central1",
			Model:        "veo-3.0-generate-001",
			PollInterval: 10 * time.Second,
			MaxWait:      10 * time.Minute,
		},
		Storage: StorageConfig{
			Scheme:    "gs",
			LocalRoot: "./blobs",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Brand: BrandConfig{
			LogoPath:            "./assets/logo.png",
			EndCardPath:         "./assets/end_card.png",
			TransparentLogoPath: "./assets/logo_transparent.png",
			ReferenceLogoPath:   "./assets/logo_reference.png",
			LogoWidth:           200,
			Margin:              20,
			EndCardSeconds:      3,
			EndCardColor:        "#0055aa",
			TransitionSeconds:   0.5,
		},
		Tracking: TrackingConfig{
			ModelPath:       "./models/yolov8n.onnx",
			Classes:         []int{2, 7},
			Confidence:      0.25,
			NMSThreshold:    0.45,
			ORBFeatures:     2000,
			MinDescriptors:  20,
			MinMatches:      10,
			RANSACThreshold: 5.0,
		},
		Pipeline: PipelineConfig{
			CrossfadeSeconds: 1.0,
			DownloadWorkers:  4,
			ThumbnailAt:      time.Second,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SCENECHAIN_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("SCENECHAIN_STORAGE_SCHEME"); v != "" {
		cfg.Storage.Scheme = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Ledger.DatabaseURL = v
	}
	if v := os.Getenv("VEO_PROJECT_ID"); v != "" {
		cfg.Veo.ProjectID = v
	}
	if v := os.Getenv("VEO_LOCATION"); v != "" {
		cfg.Veo.Location = v
	}
	if v := os.Getenv("VEO_MODEL"); v != "" {
		cfg.Veo.Model = v
	}
	if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
		cfg.Tracking.RuntimeLibrary = v
	}
	if v := os.Getenv("SCENECHAIN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".scenechain", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
