package _202510081120_reportIndexes

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create index if not exists idx_fact_revenue_week_direction on fact_revenue (week_id, direction)`,
		`create index if not exists idx_fact_revenue_product_id on fact_revenue (product_id)`,
		`create index if not exists idx_fact_costs_job_id on fact_costs (job_id)`,
		`create index if not exists idx_dim_product_group on dim_product (product_group)`,
	}
	for _, query := range queries {
		res := grm.Exec(query)
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202510081120_reportIndexes"
}
