package _202510060915_weeklyFacts

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists fact_revenue (
			id serial primary key,
			week_id integer not null references dim_week (id),
			product_id integer not null references dim_product (id),
			direction varchar(10) not null,
			revenue numeric(18,2) not null default 0,
			order_count integer not null default 0,
			created_at timestamp with time zone default current_timestamp,
			updated_at timestamp with time zone default null,
			constraint uniq_fact_revenue_week_product_direction unique (week_id, product_id, direction),
			constraint chk_fact_revenue_direction check (direction in ('INBOUND', 'OUTBOUND'))
		)`,
		`create table if not exists fact_costs (
			id serial primary key,
			week_id integer not null references dim_week (id),
			job_id integer not null references dim_job (id),
			labor_hours numeric(10,2) not null default 0,
			burden_hours numeric(10,2) not null default 0,
			direct_labor numeric(18,2) not null default 0,
			burden numeric(18,2) not null default 0,
			material_cost numeric(18,2) not null default 0,
			created_at timestamp with time zone default current_timestamp,
			updated_at timestamp with time zone default null,
			constraint uniq_fact_costs_week_job unique (week_id, job_id)
		)`,
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
	return "202510060915_weeklyFacts"
}
