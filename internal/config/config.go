package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	Environment string

	// LLM provider settings (Azure OpenAI surface)
	AzureOpenAIKey      string
	AzureOpenAIEndpoint string
	AzureAPIVersion     string
	DefaultDeployment   string
	MockLLM             bool
}

func LoadConfig() *Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "clonegpt.db"),
		Environment: getEnv("APP_ENV", "production"),

		AzureOpenAIKey:      getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIEndpoint: getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureAPIVersion:     getEnv("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		DefaultDeployment:   getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o-mini"),
		MockLLM:             getEnvAsBool("LLM_MOCK", false),
	}

	if !cfg.MockLLM && cfg.AzureOpenAIKey == "" {
		log.Fatal("AZURE_OPENAI_API_KEY environment variable is required unless LLM_MOCK=true")
	}

	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
