package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Google Sheets destination.
	SpreadsheetID       string
	ReviewSpreadsheetID string
	AccessToken         string
	Authorized          bool
	SheetsEndpoint      string
	SheetName           string

	// Geocoding.
	MapsAPIKey      string
	GeocodeEndpoint string
	GeocodeDelayMs  int

	// Page capture.
	BranchPageURL string
	ReviewPageURL string
	SnapshotPath  string
	ChromeBin     string
	MaxRetries    int

	// Local storage.
	CSVOutputPath string

	// Optional Postgres archive mirror.
	ArchiveEnabled   bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		SpreadsheetID:       getEnv("SPREADSHEET_ID", ""),
		ReviewSpreadsheetID: getEnv("REVIEW_SPREADSHEET_ID", getEnv("SPREADSHEET_ID", "")),
		AccessToken:         getEnv("SHEETS_ACCESS_TOKEN", ""),
		Authorized:          getEnvBool("SHEETS_AUTHORIZED", false),
		SheetsEndpoint:      getEnv("SHEETS_ENDPOINT", "https://sheets.googleapis.com/v4/spreadsheets"),
		SheetName:           getEnv("SHEET_NAME", "Sheet1"),

		MapsAPIKey:      getEnv("GOOGLE_MAPS_API_KEY", ""),
		GeocodeEndpoint: getEnv("GEOCODE_ENDPOINT", "https://maps.googleapis.com/maps/api/geocode/json"),
		GeocodeDelayMs:  getEnvInt("GEOCODE_DELAY_MS", 200),

		BranchPageURL: getEnv("BRANCH_PAGE_URL", "https://www.bpi.com.ph/about-bpi/contact-us"),
		ReviewPageURL: getEnv("REVIEW_PAGE_URL", ""),
		SnapshotPath:  getEnv("SNAPSHOT_PATH", ""),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		MaxRetries:    getEnvInt("MAX_RETRIES", 3),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_records.csv"),

		ArchiveEnabled:   getEnvBool("POSTGRES_ARCHIVE", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "branch_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// Validate checks the four preconditions the pipeline needs before any
// stage may run. A failure here means the run never starts.
func (c *Config) Validate() error {
	var missing []string
	if c.SpreadsheetID == "" {
		missing = append(missing, "SPREADSHEET_ID")
	}
	if c.AccessToken == "" {
		missing = append(missing, "SHEETS_ACCESS_TOKEN")
	}
	if c.MapsAPIKey == "" {
		missing = append(missing, "GOOGLE_MAPS_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s — configure Google Sheets access first",
			strings.Join(missing, ", "))
	}
	if !c.Authorized {
		return fmt.Errorf("not authorized: set SHEETS_AUTHORIZED=true after authorizing Google Sheets access")
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the archive mirror.
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

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
