package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	// Cities the Redfin source fetches on each refresh.
	SearchCities []string

	HTTPAddr      string
	CSVOutputPath string
	ReferencePath string
	ChromeBin     string
	LogMode       string

	Criteria Criteria
}

// Criteria are the hard-filter eligibility rules. The zero values are never
// used directly; Load fills in the documented defaults.
type Criteria struct {
	MinBeds  int
	MinBaths float64
	MinSqft  int
	MinPrice int
	MaxPrice int
	// MaxAge in years; 0 disables the age rule entirely.
	MaxAge int
	// CurrentYear anchors the age rule so tests stay deterministic.
	CurrentYear int
}

// DefaultSearchCities mirrors the Arizona metro areas the project was built
// around. Overridable via SEARCH_CITIES (comma-separated).
var DefaultSearchCities = []string{
	"Gilbert", "Chandler", "Scottsdale", "Mesa", "Surprise",
	"Tucson", "Green Valley", "Oro Valley",
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "hunter"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "hunter123"),
		PostgresDB:       getEnv("POSTGRES_DB", "house_hunter"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2500),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		SearchCities: getEnvList("SEARCH_CITIES", DefaultSearchCities),

		HTTPAddr:      getEnv("HTTP_ADDR", ":5000"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/listings.csv"),
		ReferencePath: getEnv("REFERENCE_PATH", ""),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		LogMode:       getEnv("LOG_MODE", "dev"),

		Criteria: LoadCriteria(),
	}
}

// LoadCriteria builds the hard-filter rules from the environment with the
// documented defaults: 3 beds, 2 baths, 1200 sqft, $400k-$700k, 30-year age cap.
func LoadCriteria() Criteria {
	return Criteria{
		MinBeds:     getEnvInt("MIN_BEDS", 3),
		MinBaths:    getEnvFloat("MIN_BATHS", 2),
		MinSqft:     getEnvInt("MIN_SQFT", 1200),
		MinPrice:    getEnvInt("MIN_PRICE", 400000),
		MaxPrice:    getEnvInt("MAX_PRICE", 700000),
		MaxAge:      getEnvInt("MAX_AGE_YEARS", 30),
		CurrentYear: 0, // resolved to time.Now().Year() by the filter
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
