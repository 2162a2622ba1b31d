package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Config holds every setting the monitoring server reads from the environment.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	FaceDataDir    string
	FaceModelsDir  string
	ReportsDir     string
	SessionLogPath string

	InferenceAddr    string
	InferenceTimeout time.Duration

	CaptureURL    string
	CaptureDevice int

	// The teacher camera is off unless a URL is set or the device is >= 0.
	TeacherCaptureURL    string
	TeacherCaptureDevice int

	MatchTolerance float64
	DetectionScale float64
	AlertCooldown  time.Duration
	LogInterval    time.Duration
	AlertQueueSize int
	JPEGQuality    int

	SpeechCommand string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	PresenceInterval time.Duration
}

// TeacherCameraEnabled reports whether a second camera is configured.
func (c Config) TeacherCameraEnabled() bool {
	return c.TeacherCaptureURL != "" || c.TeacherCaptureDevice >= 0
}

// FromEnv builds a Config from environment variables, falling back to the
// defaults the classroom deployment has always used.
func FromEnv() Config {
	return Config{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		FaceDataDir:    GetEnv("FACE_DATA_DIR", "face_data"),
		FaceModelsDir:  GetEnv("FACE_MODELS_DIR", "models"),
		ReportsDir:     GetEnv("REPORTS_DIR", "reports"),
		SessionLogPath: GetEnv("SESSION_LOG_PATH", "student_log.csv"),

		InferenceAddr:    GetEnv("INFERENCE_ADDR", "localhost:50051"),
		InferenceTimeout: GetEnvDuration("INFERENCE_TIMEOUT", 2*time.Second),

		CaptureURL:    GetEnv("CAPTURE_URL", ""),
		CaptureDevice: GetEnvInt("CAPTURE_DEVICE", 0),

		TeacherCaptureURL:    GetEnv("TEACHER_CAPTURE_URL", ""),
		TeacherCaptureDevice: GetEnvInt("TEACHER_CAPTURE_DEVICE", -1),

		MatchTolerance: GetEnvFloat("MATCH_TOLERANCE", 0.5),
		DetectionScale: GetEnvFloat("DETECTION_SCALE", 0.25),
		AlertCooldown:  GetEnvDuration("ALERT_COOLDOWN", 5*time.Second),
		LogInterval:    GetEnvDuration("LOG_INTERVAL", 60*time.Second),
		AlertQueueSize: GetEnvInt("ALERT_QUEUE_SIZE", 32),
		JPEGQuality:    GetEnvInt("JPEG_QUALITY", 80),

		SpeechCommand: GetEnv("SPEECH_COMMAND", "espeak-ng"),

		RedisAddr:        GetEnv("REDIS_ADDR", ""),
		RedisPassword:    GetEnv("REDIS_PASSWORD", ""),
		RedisDB:          GetEnvInt("REDIS_DB", 0),
		PresenceInterval: GetEnvDuration("PRESENCE_INTERVAL", time.Second),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration accepts Go duration strings ("5s", "1m") or a bare number of
// seconds ("60").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}
