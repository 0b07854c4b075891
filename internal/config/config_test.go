package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func Test_Config(t *testing.T) {
	t.Run("KebabToSnakeCase", func(t *testing.T) {
		assert.Equal(t, "etl.default_labor_rate", KebabToSnakeCase("etl.default-labor-rate"))
		assert.Equal(t, "debug", KebabToSnakeCase("debug"))
	})

	t.Run("Defaults when nothing is configured", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		cfg := NewConfig()
		assert.True(t, cfg.EtlConfig.DefaultLaborRate.Equal(decimal.RequireFromString("45")))
		assert.True(t, cfg.EtlConfig.DefaultBurdenRate.Equal(decimal.RequireFromString("28")))
		assert.Equal(t, RevenueDirection_Outbound, cfg.EtlConfig.DefaultRevenueDirection)
		assert.Equal(t, "IPS", cfg.EtlConfig.DefaultProductLine)
		assert.Equal(t, "fos-etl", cfg.ErpConfig.UserId)
		assert.Nil(t, cfg.ValidateEtl())
	})

	t.Run("Values are read from viper", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		viper.Set(EtlDefaultLaborRate, "50.5")
		viper.Set(EtlDefaultRevenueDirection, "INBOUND")
		viper.Set(ErpSkipJobPrefixes, []string{"UF, TMP", ""})
		viper.Set(ErpRequestTimeout, 30)

		cfg := NewConfig()
		assert.True(t, cfg.EtlConfig.DefaultLaborRate.Equal(decimal.RequireFromString("50.5")))
		assert.Equal(t, RevenueDirection_Inbound, cfg.EtlConfig.DefaultRevenueDirection)
		assert.Equal(t, []string{"UF", "TMP"}, cfg.ErpConfig.SkipJobPrefixes)
		assert.Equal(t, float64(30), cfg.ErpConfig.RequestTimeout.Seconds())
	})

	t.Run("Invalid revenue direction fails validation", func(t *testing.T) {
		cfg := &Config{EtlConfig: NewEtlConfig()}
		cfg.EtlConfig.DefaultRevenueDirection = "sideways"
		assert.Error(t, cfg.ValidateEtl())
	})

	t.Run("Negative rates fail validation", func(t *testing.T) {
		cfg := &Config{EtlConfig: NewEtlConfig()}
		cfg.EtlConfig.DefaultBurdenRate = decimal.NewFromInt(-1)
		assert.Error(t, cfg.ValidateEtl())
	})

	t.Run("Database config requires a host", func(t *testing.T) {
		cfg := &Config{DatabaseConfig: DatabaseConfig{Port: 5432, DbName: "kpi"}}
		assert.Error(t, cfg.ValidateDatabase())

		cfg.DatabaseConfig.Host = "localhost"
		assert.Nil(t, cfg.ValidateDatabase())

		cfg.DatabaseConfig.SSLMode = "sometimes"
		assert.Error(t, cfg.ValidateDatabase())
	})

	t.Run("Erp config requires a connector url", func(t *testing.T) {
		cfg := &Config{ErpConfig: ErpConfig{UserId: "fos-etl", PageSize: 100}}
		assert.Error(t, cfg.ValidateErp())

		cfg.ErpConfig.ConnectorUrl = "http://erp.local:8080"
		assert.Nil(t, cfg.ValidateErp())
	})

	t.Run("Report status is restricted", func(t *testing.T) {
		cfg := &Config{ReportConfig: ReportConfig{Status: "wip"}}
		assert.Nil(t, cfg.ValidateReport())

		cfg.ReportConfig.Status = "open"
		assert.Error(t, cfg.ValidateReport())
	})

	t.Run("LoadDotEnv keeps existing environment values", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		err := os.WriteFile(envFile, []byte("AFKPI_TEST_DOTENV_A=fromfile\nAFKPI_TEST_DOTENV_B=fromfile\n"), 0644)
		assert.Nil(t, err)

		t.Setenv("AFKPI_TEST_DOTENV_A", "fromenv")
		defer os.Unsetenv("AFKPI_TEST_DOTENV_B")

		assert.Nil(t, LoadDotEnv(envFile))
		assert.Equal(t, "fromenv", os.Getenv("AFKPI_TEST_DOTENV_A"))
		assert.Equal(t, "fromfile", os.Getenv("AFKPI_TEST_DOTENV_B"))
	})
}
