package tests

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/zsmith-jtec/AFKPI/internal/config"
)

func getEnv(key string, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// PostgresTestsEnabled is true when a test database host has been provided.
func PostgresTestsEnabled() bool {
	return os.Getenv("AFKPI_DATABASE_HOST") != ""
}

func GetDbConfigFromEnv() *config.DatabaseConfig {
	port, err := strconv.Atoi(getEnv("AFKPI_DATABASE_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return &config.DatabaseConfig{
		Host:       getEnv("AFKPI_DATABASE_HOST", "localhost"),
		Port:       port,
		User:       getEnv("AFKPI_DATABASE_USER", "postgres"),
		Password:   os.Getenv("AFKPI_DATABASE_PASSWORD"),
		DbName:     getEnv("AFKPI_DATABASE_DB_NAME", "afkpi_test"),
		SchemaName: os.Getenv("AFKPI_DATABASE_SCHEMA_NAME"),
	}
}

func GenerateTestDbName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("afkpi_test_%s", strings.ReplaceAll(id.String(), "-", "")), nil
}
