package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Settings holds every runtime option the server reads from the
// environment. Load normalizes values once: relative paths are resolved
// against BaseDir and out-of-range numbers are clamped to safe defaults,
// so the rest of the code never re-validates configuration.
type Settings struct {
	AppEnv string
	Host   string
	Port   int

	// BaseDir anchors all relative paths. Defaults to the process
	// working directory.
	BaseDir   string
	UploadDir string
	OutputDir string

	SoundFontPath  string
	FluidsynthPath string

	MaxUploadSizeMB  int
	MaxAudioSeconds  int
	TargetSampleRate int
	OnsetThreshold   float64
	FrameThreshold   float64

	UseStubConverter    bool
	UseStubSynth        bool
	TranscriberCmd      string
	KeepIntermediateWav bool

	WorkerCount int

	CORSAllowOrigins []string

	LogLevel string
	LogFile  string
}

// Load reads the environment and returns normalized settings.
func Load() (*Settings, error) {
	baseDir := os.Getenv("BASE_DIR")
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		baseDir = wd
	}
	baseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve BASE_DIR: %w", err)
	}

	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8000"))
	if err != nil || port <= 0 || port > 65535 {
		port = 8000
	}

	s := &Settings{
		AppEnv: getEnvOrDefault("APP_ENV", "development"),
		Host:   getEnvOrDefault("HOST", "0.0.0.0"),
		Port:   port,

		BaseDir:   baseDir,
		UploadDir: resolvePath(baseDir, getEnvOrDefault("UPLOAD_DIR", "uploads")),
		OutputDir: resolvePath(baseDir, getEnvOrDefault("OUTPUT_DIR", "outputs")),

		SoundFontPath:  resolvePath(baseDir, soundFontEnv()),
		FluidsynthPath: os.Getenv("FLUIDSYNTH_PATH"),

		MaxUploadSizeMB:  getEnvOrDefaultInt("MAX_UPLOAD_SIZE_MB", 10),
		MaxAudioSeconds:  getEnvOrDefaultInt("MAX_AUDIO_SECONDS", 30),
		TargetSampleRate: getEnvOrDefaultInt("TARGET_SAMPLE_RATE", 22050),
		OnsetThreshold:   getEnvOrDefaultFloat("ONSET_THRESHOLD", 0.5),
		FrameThreshold:   getEnvOrDefaultFloat("FRAME_THRESHOLD", 0.3),

		UseStubConverter:    getEnvOrDefaultBool("USE_STUB_CONVERTER", true),
		UseStubSynth:        getEnvOrDefaultBool("USE_STUB_SYNTH", false),
		TranscriberCmd:      os.Getenv("TRANSCRIBER_CMD"),
		KeepIntermediateWav: getEnvOrDefaultBool("KEEP_INTERMEDIATE_WAV", false),

		WorkerCount: getEnvOrDefaultInt("WORKER_COUNT", 0),

		CORSAllowOrigins: splitOrigins(os.Getenv("CORS_ALLOW_ORIGINS")),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  resolvePath(baseDir, getEnvOrDefault("LOG_FILE", filepath.Join("logs", "hum2song.log"))),
	}

	s.clamp()
	return s, nil
}

// clamp normalizes out-of-range numeric options instead of rejecting
// them, matching the forgiving startup behavior users expect from a
// local tool.
func (s *Settings) clamp() {
	if s.MaxUploadSizeMB <= 0 {
		s.MaxUploadSizeMB = 10
	}
	if s.MaxAudioSeconds <= 0 {
		s.MaxAudioSeconds = 20
	} else if s.MaxAudioSeconds > 60 {
		s.MaxAudioSeconds = 60
	}
	if s.TargetSampleRate < 8000 {
		s.TargetSampleRate = 22050
	}
	s.OnsetThreshold = clampFloat(s.OnsetThreshold, 0.05, 0.95)
	s.FrameThreshold = clampFloat(s.FrameThreshold, 0.05, 0.95)
	if s.WorkerCount < 0 {
		s.WorkerCount = 0
	}
}

// IsDev reports whether the server runs with relaxed development
// defaults (localhost CORS, console logging).
func (s *Settings) IsDev() bool {
	switch strings.ToLower(s.AppEnv) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (s *Settings) MaxUploadBytes() int64 {
	return int64(s.MaxUploadSizeMB) * 1024 * 1024
}

// ArtifactsDir is where completed task outputs are moved for download.
func (s *Settings) ArtifactsDir() string {
	return filepath.Join(s.BaseDir, "artifacts")
}

// Addr returns the host:port listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EnsureDirs creates the upload, output, artifact and log directories.
func (s *Settings) EnsureDirs() error {
	dirs := []string{s.UploadDir, s.OutputDir, s.ArtifactsDir(), filepath.Dir(s.LogFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// soundFontEnv honors SOUND_FONT_PATH with SF2_PATH as a legacy alias.
func soundFontEnv() string {
	if v := os.Getenv("SOUND_FONT_PATH"); v != "" {
		return v
	}
	if v := os.Getenv("SF2_PATH"); v != "" {
		return v
	}
	return filepath.Join("assets", "piano.sf2")
}

func resolvePath(baseDir, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return v
}
