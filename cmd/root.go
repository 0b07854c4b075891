package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
)

const envFileFlag = "env-file"

var rootCmd = &cobra.Command{
	Use:   "afkpi",
	Short: "Weekly manufacturing KPI ETL",
	Long: `afkpi loads ERP exports (revenue, labor, jobs, material) into a weekly
star schema and reports revenue, cost and margin per product group.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv, normalizer.MustValidateRegistry)
	initConfig(rootCmd)

	rootCmd.PersistentFlags().String(envFileFlag, "", `Path to a .env file (default "./.env" when present)`)
	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "afkpi", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "afkpi", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `disable, require, verify-ca or verify-full`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLCert, "", `Client certificate`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLKey, "", `Client key`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLRootCert, "", `Root certificate`)

	rootCmd.PersistentFlags().String(config.EtlDefaultLaborRate, config.DefaultLaborRate, `Hourly labor rate for resource groups without a mapping`)
	rootCmd.PersistentFlags().String(config.EtlDefaultBurdenRate, config.DefaultBurdenRate, `Hourly burden rate for resource groups without a mapping`)
	rootCmd.PersistentFlags().String(config.EtlDefaultRevenueDirection, string(config.RevenueDirection_Outbound), `Direction of revenue rows without an open order flag (inbound or outbound)`)
	rootCmd.PersistentFlags().String(config.EtlDefaultProductLine, config.DefaultProductLine, `Product line assigned to new products`)
	rootCmd.PersistentFlags().String(config.EtlRatesFile, "", `YAML or spreadsheet of labor/burden rates per resource group`)
	rootCmd.PersistentFlags().String(config.EtlMarginsFile, "", `Spreadsheet of target margins per product group and category`)

	rootCmd.PersistentFlags().String(config.ErpConnectorUrl, "", `e.g. "http://erp-connector:8080"`)
	rootCmd.PersistentFlags().String(config.ErpApiKey, "", `API key sent as x-api-key`)
	rootCmd.PersistentFlags().String(config.ErpUserId, "fos-etl", `ERP user the BAQs run as`)
	rootCmd.PersistentFlags().Int(config.ErpPageSize, 10000, `Maximum records per BAQ request`)
	rootCmd.PersistentFlags().Int(config.ErpLookbackDays, 90, `Only sync records from the last N days (0 syncs everything)`)
	rootCmd.PersistentFlags().StringSlice(config.ErpSkipJobPrefixes, []string{"UF"}, `Job number prefixes to ignore`)
	rootCmd.PersistentFlags().Int(config.ErpRequestTimeout, 120, `ERP request timeout in seconds`)
	rootCmd.PersistentFlags().Int(config.ErpSyncInterval, 60, `Minutes between ERP syncs in "run"`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	rootCmd.PersistentFlags().String(config.LogFile, "", `Also write logs to this file, rotated by size`)
	rootCmd.PersistentFlags().Int(config.LogMaxSizeMb, 100, `Rotate the log file after this many megabytes`)
	rootCmd.PersistentFlags().Int(config.LogMaxBackups, 5, `Rotated log files to keep`)
	rootCmd.PersistentFlags().Int(config.LogMaxAgeDays, 30, `Days to keep rotated log files`)

	// setup sub commands
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncErpCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(createSnapshotCmd)
	rootCmd.AddCommand(restoreSnapshotCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	loadCmd.PersistentFlags().StringP(config.LoadKind, "k", "", `Export kind: revenue, labor, jobs or material (required)`)
	loadCmd.PersistentFlags().StringP(config.LoadFile, "f", "", `Path to a .csv or .xlsx export (required)`)
	loadCmd.PersistentFlags().String(config.LoadActor, "", `Who is loading the file (default $USER)`)
	loadCmd.PersistentFlags().String(config.LoadSheet, "", `Worksheet to read from an .xlsx file (default first sheet)`)

	reportCmd.PersistentFlags().String(config.ReportWeek, "", `Any date inside the week to report (default latest week)`)
	reportCmd.PersistentFlags().String(config.ReportProductGroup, "", `Limit to one product group`)
	reportCmd.PersistentFlags().String(config.ReportStatus, "all", `Job status for the labor report: all, wip or completed`)
	reportCmd.PersistentFlags().Int(config.ReportLimit, 0, `Maximum rows to return (0 uses the default)`)
	reportCmd.PersistentFlags().String(config.ReportAction, "", `Audit action filter, e.g. UPLOAD`)
	reportCmd.PersistentFlags().String(config.ReportActor, "", `Audit actor filter`)
	reportCmd.PersistentFlags().String(config.ReportEntity, "", `Audit entity filter`)

	createSnapshotCmd.PersistentFlags().String(config.SnapshotOutputFile, "", "Path to save the snapshot file to (required)")
	restoreSnapshotCmd.PersistentFlags().String(config.SnapshotInputFile, "", "Path to the snapshot file (required)")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// loadDotEnv runs before any command so values from .env are visible to
// viper's environment lookups.
func loadDotEnv() {
	var files []string
	if f, _ := rootCmd.PersistentFlags().GetString(envFileFlag); f != "" {
		files = append(files, f)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags binds the flags of the running command, including those inherited
// from its parents, to their viper keys.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
