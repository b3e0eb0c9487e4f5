package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go-kpi/internal/elastic"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	LogToDB     bool

	ES elastic.Config

	KPIDefinitionsPath string
	// StrictAggregations fails KPI loads on unknown aggregation kinds
	// instead of logging a warning.
	StrictAggregations bool
	JSONDateZone       *time.Location
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	env := getEnv("ENVIRONMENT", "development")

	zone, err := time.LoadLocation(getEnv("JSON_DATE_ZONE", "UTC"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-kpi"),
		SkipAuth:    getEnvBool("SKIP_AUTH", false),
		Environment: env,
		AppId:       getEnv("APP_ID", "go-kpi"),
		LogToDB:     getEnvBool("LOG_TO_DB", false),
		ES: elastic.Config{
			Addresses:       splitList(getEnv("ES_ADDRESSES", "http://localhost:9200")),
			Username:        getEnv("ES_USERNAME", ""),
			Password:        getEnv("ES_PASSWORD", ""),
			APIKey:          getEnv("ES_API_KEY", ""),
			MaxRetries:      getEnvInt("ES_MAX_RETRIES", 3),
			BreakerFailures: uint32(getEnvInt("ES_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getEnvDuration("ES_BREAKER_TIMEOUT", 30*time.Second),
			BreakerInterval: getEnvDuration("ES_BREAKER_INTERVAL", time.Minute),
		},
		KPIDefinitionsPath: getEnv("KPI_DEFINITIONS_PATH", "./kpis.json"),
		StrictAggregations: getEnvBool("KPI_STRICT_AGGREGATIONS", env != "production"),
		JSONDateZone:       zone,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
