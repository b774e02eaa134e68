package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr       string
	DBPath           string
	FilesPath        string
	PublicBaseURL    string
	PreferencesPath  string
	JWTSecret        string
	SessionTTLHours  int
	UndoDepth        int
	RefreshOnSuccess bool
	MaxSessions      int
	VisionBackend    string
	ClaudeAPIKey     string
	ClaudeModel      string
	LogLevel         string
	LogFile          string
	LogFormat        string
}

func Load() *Config {
	return &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		DBPath:           getEnv("DB_PATH", "/data/homeinv.db"),
		FilesPath:        getEnv("FILES_PATH", "/data/files"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080/files"),
		PreferencesPath:  getEnv("PREFERENCES_PATH", "/data/preferences.json"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		SessionTTLHours:  getEnvInt("SESSION_TTL_HOURS", 72),
		UndoDepth:        getEnvInt("UNDO_DEPTH", 20),
		RefreshOnSuccess: getEnvBool("REFRESH_ON_SUCCESS", true),
		MaxSessions:      getEnvInt("MAX_SESSIONS", 64),
		VisionBackend:    getEnv("VISION_BACKEND", "none"),
		ClaudeAPIKey:     getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:      getEnv("CLAUDE_MODEL", "claude-opus-4-6"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// getEnvInt falls back to defaultVal when the variable is unset or not a
// positive integer.
func getEnvInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultVal
	}
	return b
}
