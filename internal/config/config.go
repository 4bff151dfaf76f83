package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	LLMKey       string
	LLMEndpoint  string
	LLMModel     string
	LLMFastModel string

	SearchKey      string
	SearchEngineID string
	SearchBaseURL  string

	DailyQuotaLimit int
	MaxResults      int
	NumPages        int
}

// RequiredVars are the credentials the pipeline cannot run without.
var RequiredVars = []string{"LLM_API_KEY", "SEARCH_API_KEY", "SEARCH_ENGINE_ID"}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return Config{
		LLMKey:       os.Getenv("LLM_API_KEY"),
		LLMEndpoint:  getEnv("LLM_API_ENDPOINT", "https://api.groq.com/openai/v1"),
		LLMModel:     getEnv("LLM_MODEL", "deepseek-r1-distill-llama-70b"),
		LLMFastModel: getEnv("LLM_FAST_MODEL", "llama-3.1-8b-instant"),

		SearchKey:      os.Getenv("SEARCH_API_KEY"),
		SearchEngineID: os.Getenv("SEARCH_ENGINE_ID"),
		SearchBaseURL:  getEnv("SEARCH_BASE_URL", "https://www.googleapis.com/customsearch/v1"),

		DailyQuotaLimit: getEnvInt("DAILY_QUOTA_LIMIT", 100),
		MaxResults:      getEnvInt("MAX_RESULTS", 3),
		NumPages:        getEnvInt("NUM_PAGES", 3),
	}
}

// MissingRequired reports which required variables are absent from the environment.
func MissingRequired() []string {
	var missing []string
	for _, name := range RequiredVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		log.Printf("ignoring invalid %s=%q, using %d", key, val, fallback)
		return fallback
	}
	return n
}
