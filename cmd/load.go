package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/loader"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
	"go.uber.org/zap"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one ERP export into the KPI database",
	Long: `Load a revenue, labor, jobs or material export (.csv or .xlsx).

The file is checked against the known export layouts before anything is
written. Rows that cannot be saved are skipped and reported; everything else
commits together with one audit entry. Loading the same file twice leaves the
facts unchanged.`,
	Example: `  afkpi load --load.kind revenue --load.file ~/exports/orders.csv
  afkpi load -k labor -f labor.xlsx --load.sheet "Labor Detail" --load.actor jdoe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		kind, err := normalizer.ParseKind(cfg.LoadConfig.Kind)
		if err != nil {
			return err
		}
		if cfg.LoadConfig.File == "" {
			return fmt.Errorf("an export file i.e. `load.file` must be specified")
		}
		actor := config.StringWithDefault(cfg.LoadConfig.Actor, os.Getenv("USER"))

		table, err := tabular.ReadFile(cfg.LoadConfig.File, cfg.LoadConfig.Sheet)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", cfg.LoadConfig.File)
		}
		l.Sugar().Infow("Read export",
			zap.String("file", filepath.Base(cfg.LoadConfig.File)),
			zap.String("kind", string(kind)),
			zap.Int("rows", table.Len()),
		)

		app, err := newEtlApp(cfg, l)
		if err != nil {
			return err
		}
		defer app.Close()

		bar := newRowProgress(fmt.Sprintf("loading %s", kind))
		res, err := app.loader.Load(context.Background(), kind, table, actor, &loader.LoadOptions{
			Progress: bar.update,
		})
		bar.finish()
		if err != nil {
			var schemaErr *normalizer.SchemaValidationError
			if errors.As(err, &schemaErr) {
				l.Sugar().Errorw("Export does not match any known layout",
					zap.String("kind", string(kind)),
					zap.Strings("missing", schemaErr.Missing),
				)
			}
			return err
		}
		return printJson(res)
	},
}

// rowProgress draws a bar on stderr once the number of rows to write is known.
type rowProgress struct {
	description string
	bar         *progressbar.ProgressBar
}

func newRowProgress(description string) *rowProgress {
	return &rowProgress{description: description}
}

func (p *rowProgress) update(done int, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *rowProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
