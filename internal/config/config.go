package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port int `validate:"min=1,max=65535"`

	CameraURL        string        `validate:"required"`
	CameraID         string        `validate:"required"`
	TargetFPS        int           `validate:"min=1,max=60"`
	ReconnectTimeout time.Duration `validate:"gt=0"`
	ReadTimeout      time.Duration `validate:"gt=0"`
	FrameQueueSize   int           `validate:"min=1"`

	GroupMaxDistance float64 `validate:"gt=0"`
	GroupMinSize     int     `validate:"min=1"`

	FaceRecognitionEnabled bool
	FaceServiceURL         string  `validate:"required_if=FaceRecognitionEnabled true"`
	FaceTolerance          float64 `validate:"gt=0"`

	ModelPath          string
	ConfigPath         string
	DetectionThreshold float64 `validate:"gt=0,lt=1"`
	JPEGQuality        int     `validate:"min=1,max=100"`

	DatabasePath     string        `validate:"required"`
	EventBufferLimit int           `validate:"min=1"`
	FlushInterval    time.Duration `validate:"gt=0"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	StreamFPS       int `validate:"min=1,max=120"`
	DispatchWorkers int `validate:"min=1"`
	DispatchQueue   int `validate:"min=1"`
	APIToken        string

	LogLevel     string `validate:"oneof=debug info warning warn error"`
	LogDirectory string `validate:"required"`
}

// Load reads .env (when present) and the process environment into a Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring .env: %v\n", err)
	}

	return &Config{
		Port: getEnvAsInt("PORT", 8080),

		CameraURL:        getEnv("CAMERA_RTSP_URL", "rtsp://localhost:554/stream"),
		CameraID:         getEnv("CAMERA_ID", "camera1"),
		TargetFPS:        getEnvAsInt("CAMERA_FPS_PROCESS", 5),
		ReconnectTimeout: getEnvAsSeconds("CAMERA_RECONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:      getEnvAsSeconds("CAMERA_READ_TIMEOUT", 30*time.Second),
		FrameQueueSize:   getEnvAsInt("CAMERA_QUEUE_SIZE", 30),

		GroupMaxDistance: getEnvAsFloat("GROUP_MAX_DISTANCE", 1.5),
		GroupMinSize:     getEnvAsInt("GROUP_MIN_SIZE", 2),

		FaceRecognitionEnabled: getEnvAsBool("FACE_RECOGNITION_ENABLED", true),
		FaceServiceURL:         getEnv("FACE_SERVICE_URL", "http://localhost:5001"),
		FaceTolerance:          getEnvAsFloat("FACE_TOLERANCE", 0.6),

		ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:         getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		DetectionThreshold: getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
		JPEGQuality:        getEnvAsInt("JPEG_QUALITY", 85),

		DatabasePath:     getEnv("DB_PATH", filepath.Join(".", "data", "occupancy.db")),
		EventBufferLimit: getEnvAsInt("EVENT_BUFFER_LIMIT", 50),
		FlushInterval:    getEnvAsSeconds("FLUSH_INTERVAL", 5*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		StreamFPS:       getEnvAsInt("STREAM_FPS", 30),
		DispatchWorkers: getEnvAsInt("DISPATCH_WORKERS", 2),
		DispatchQueue:   getEnvAsInt("DISPATCH_QUEUE", 100),
		APIToken:        getEnv("API_TOKEN", ""),

		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsSeconds accepts either a bare number of seconds ("10") or a Go duration ("1m30s").
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
