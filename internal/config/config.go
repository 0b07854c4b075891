package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "AFKPI"

type RevenueDirection string

const (
	RevenueDirection_Inbound  RevenueDirection = "inbound"
	RevenueDirection_Outbound RevenueDirection = "outbound"
)

const (
	DefaultLaborRate   = "45.00"
	DefaultBurdenRate  = "28.00"
	DefaultProductLine = "IPS"
)

type DatabaseConfig struct {
	Host        string `validate:"required"`
	Port        int    `validate:"gt=0"`
	User        string
	Password    string
	DbName      string `validate:"required"`
	SchemaName  string
	SSLMode     string `validate:"omitempty,oneof=disable require verify-ca verify-full"`
	SSLCert     string
	SSLKey      string
	SSLRootCert string
}

type EtlConfig struct {
	DefaultLaborRate        decimal.Decimal
	DefaultBurdenRate       decimal.Decimal
	DefaultRevenueDirection RevenueDirection `validate:"oneof=inbound outbound"`
	DefaultProductLine      string           `validate:"required"`
	RatesFile               string
	MarginsFile             string
}

type ErpConfig struct {
	ConnectorUrl    string `validate:"omitempty,url"`
	ApiKey          string
	UserId          string `validate:"required"`
	PageSize        int    `validate:"gt=0"`
	LookbackDays    int    `validate:"gte=0"`
	SkipJobPrefixes []string
	RequestTimeout  time.Duration
	SyncInterval    time.Duration
}

type SnapshotConfig struct {
	OutputFile string
	InputFile  string
}

type PrometheusConfig struct {
	Enabled bool
	Port    int `validate:"omitempty,gt=0"`
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64 `validate:"gte=0,lte=1"`
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type LogConfig struct {
	File       string
	MaxSizeMb  int
	MaxBackups int
	MaxAgeDays int
}

type LoadConfig struct {
	Kind  string
	File  string
	Actor string
	Sheet string
}

type ReportConfig struct {
	Week         string
	ProductGroup string
	Status       string `validate:"omitempty,oneof=all wip completed"`
	Limit        int    `validate:"gte=0"`
	Action       string
	Actor        string
	Entity       string
}

type Config struct {
	Debug            bool
	DatabaseConfig   DatabaseConfig
	EtlConfig        EtlConfig
	ErpConfig        ErpConfig
	SnapshotConfig   SnapshotConfig
	PrometheusConfig PrometheusConfig
	DataDogConfig    DataDogConfig
	LogConfig        LogConfig
	LoadConfig       LoadConfig
	ReportConfig     ReportConfig
}

func StringWithDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func normalizeFlagName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// KebabToSnakeCase maps a cli flag name onto the viper key it is stored under.
func KebabToSnakeCase(str string) string {
	return normalizeFlagName(str)
}

var (
	Debug = "debug"

	DatabaseHost        = "database.host"
	DatabasePort        = "database.port"
	DatabaseUser        = "database.user"
	DatabasePassword    = "database.password"
	DatabaseDbName      = "database.db_name"
	DatabaseSchemaName  = "database.schema_name"
	DatabaseSSLMode     = "database.ssl_mode"
	DatabaseSSLCert     = "database.ssl_cert"
	DatabaseSSLKey      = "database.ssl_key"
	DatabaseSSLRootCert = "database.ssl_root_cert"

	EtlDefaultLaborRate        = "etl.default_labor_rate"
	EtlDefaultBurdenRate       = "etl.default_burden_rate"
	EtlDefaultRevenueDirection = "etl.default_revenue_direction"
	EtlDefaultProductLine      = "etl.default_product_line"
	EtlRatesFile               = "etl.rates_file"
	EtlMarginsFile             = "etl.margins_file"

	ErpConnectorUrl    = "erp.connector_url"
	ErpApiKey          = "erp.api_key"
	ErpUserId          = "erp.user_id"
	ErpPageSize        = "erp.page_size"
	ErpLookbackDays    = "erp.lookback_days"
	ErpSkipJobPrefixes = "erp.skip_job_prefixes"
	ErpRequestTimeout  = "erp.request_timeout"
	ErpSyncInterval    = "erp.sync_interval"

	SnapshotOutputFile = "snapshot.output_file"
	SnapshotInputFile  = "snapshot.input_file"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample_rate"

	LogFile       = "log.file"
	LogMaxSizeMb  = "log.max_size_mb"
	LogMaxBackups = "log.max_backups"
	LogMaxAgeDays = "log.max_age_days"

	LoadKind  = "load.kind"
	LoadFile  = "load.file"
	LoadActor = "load.actor"
	LoadSheet = "load.sheet"

	ReportWeek         = "report.week"
	ReportProductGroup = "report.product_group"
	ReportStatus       = "report.status"
	ReportLimit        = "report.limit"
	ReportAction       = "report.action"
	ReportActor        = "report.actor"
	ReportEntity       = "report.entity"
)

// LoadDotEnv reads the given .env files (or ./.env) into the process environment.
// Variables already present in the environment are left untouched.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && len(files) == 0 {
		// a missing default .env is fine
		return nil
	}
	return err
}

func parseDecimalWithDefault(value string, defaultValue string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}
	return d
}

func parseListValue(values []string) []string {
	l := make([]string, 0)
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				l = append(l, s)
			}
		}
	}
	return l
}

func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		DatabaseConfig: DatabaseConfig{
			Host:        viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:        viper.GetInt(normalizeFlagName(DatabasePort)),
			User:        viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:    viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:      viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName:  viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:     viper.GetString(normalizeFlagName(DatabaseSSLMode)),
			SSLCert:     viper.GetString(normalizeFlagName(DatabaseSSLCert)),
			SSLKey:      viper.GetString(normalizeFlagName(DatabaseSSLKey)),
			SSLRootCert: viper.GetString(normalizeFlagName(DatabaseSSLRootCert)),
		},

		EtlConfig: EtlConfig{
			DefaultLaborRate:        parseDecimalWithDefault(viper.GetString(normalizeFlagName(EtlDefaultLaborRate)), DefaultLaborRate),
			DefaultBurdenRate:       parseDecimalWithDefault(viper.GetString(normalizeFlagName(EtlDefaultBurdenRate)), DefaultBurdenRate),
			DefaultRevenueDirection: RevenueDirection(strings.ToLower(StringWithDefault(viper.GetString(normalizeFlagName(EtlDefaultRevenueDirection)), string(RevenueDirection_Outbound)))),
			DefaultProductLine:      StringWithDefault(viper.GetString(normalizeFlagName(EtlDefaultProductLine)), DefaultProductLine),
			RatesFile:               viper.GetString(normalizeFlagName(EtlRatesFile)),
			MarginsFile:             viper.GetString(normalizeFlagName(EtlMarginsFile)),
		},

		ErpConfig: ErpConfig{
			ConnectorUrl:    viper.GetString(normalizeFlagName(ErpConnectorUrl)),
			ApiKey:          viper.GetString(normalizeFlagName(ErpApiKey)),
			UserId:          StringWithDefault(viper.GetString(normalizeFlagName(ErpUserId)), "fos-etl"),
			PageSize:        viper.GetInt(normalizeFlagName(ErpPageSize)),
			LookbackDays:    viper.GetInt(normalizeFlagName(ErpLookbackDays)),
			SkipJobPrefixes: parseListValue(viper.GetStringSlice(normalizeFlagName(ErpSkipJobPrefixes))),
			RequestTimeout:  time.Duration(viper.GetInt(normalizeFlagName(ErpRequestTimeout))) * time.Second,
			SyncInterval:    time.Duration(viper.GetInt(normalizeFlagName(ErpSyncInterval))) * time.Minute,
		},

		SnapshotConfig: SnapshotConfig{
			OutputFile: viper.GetString(normalizeFlagName(SnapshotOutputFile)),
			InputFile:  viper.GetString(normalizeFlagName(SnapshotInputFile)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},

		LogConfig: LogConfig{
			File:       viper.GetString(normalizeFlagName(LogFile)),
			MaxSizeMb:  viper.GetInt(normalizeFlagName(LogMaxSizeMb)),
			MaxBackups: viper.GetInt(normalizeFlagName(LogMaxBackups)),
			MaxAgeDays: viper.GetInt(normalizeFlagName(LogMaxAgeDays)),
		},

		LoadConfig: LoadConfig{
			Kind:  strings.ToLower(viper.GetString(normalizeFlagName(LoadKind))),
			File:  viper.GetString(normalizeFlagName(LoadFile)),
			Actor: viper.GetString(normalizeFlagName(LoadActor)),
			Sheet: viper.GetString(normalizeFlagName(LoadSheet)),
		},

		ReportConfig: ReportConfig{
			Week:         viper.GetString(normalizeFlagName(ReportWeek)),
			ProductGroup: viper.GetString(normalizeFlagName(ReportProductGroup)),
			Status:       strings.ToLower(viper.GetString(normalizeFlagName(ReportStatus))),
			Limit:        viper.GetInt(normalizeFlagName(ReportLimit)),
			Action:       viper.GetString(normalizeFlagName(ReportAction)),
			Actor:        viper.GetString(normalizeFlagName(ReportActor)),
			Entity:       viper.GetString(normalizeFlagName(ReportEntity)),
		},
	}
}

// NewEtlConfig returns the ETL settings used when nothing is configured.
func NewEtlConfig() EtlConfig {
	return EtlConfig{
		DefaultLaborRate:        decimal.RequireFromString(DefaultLaborRate),
		DefaultBurdenRate:       decimal.RequireFromString(DefaultBurdenRate),
		DefaultRevenueDirection: RevenueDirection_Outbound,
		DefaultProductLine:      DefaultProductLine,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEtl checks the ETL section only; commands that never touch the
// database or ERP still need sane rates and a known revenue direction.
func (c *Config) ValidateEtl() error {
	if err := validate.Struct(c.EtlConfig); err != nil {
		return fmt.Errorf("invalid etl config: %w", err)
	}
	if c.EtlConfig.DefaultLaborRate.IsNegative() || c.EtlConfig.DefaultBurdenRate.IsNegative() {
		return errors.New("invalid etl config: default rates must not be negative")
	}
	return nil
}

func (c *Config) ValidateDatabase() error {
	if err := validate.Struct(c.DatabaseConfig); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	return nil
}

func (c *Config) ValidateErp() error {
	if c.ErpConfig.ConnectorUrl == "" {
		return errors.New("invalid erp config: connector url is required")
	}
	if err := validate.Struct(c.ErpConfig); err != nil {
		return fmt.Errorf("invalid erp config: %w", err)
	}
	return nil
}

func (c *Config) ValidateReport() error {
	if err := validate.Struct(c.ReportConfig); err != nil {
		return fmt.Errorf("invalid report options: %w", err)
	}
	return nil
}

func (c *Config) GetMetricsDefaultLabels() map[string]string {
	return map[string]string{
		"database": c.DatabaseConfig.DbName,
	}
}
