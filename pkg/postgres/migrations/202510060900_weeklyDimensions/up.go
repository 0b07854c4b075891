package _202510060900_weeklyDimensions

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists dim_week (
			id serial primary key,
			week_start date not null,
			week_end date not null,
			iso_year integer not null,
			iso_week integer not null,
			created_at timestamp with time zone default current_timestamp,
			constraint uniq_dim_week_week_start unique (week_start),
			constraint chk_dim_week_span check (week_end = week_start + 6)
		)`,
		`create index if not exists idx_dim_week_iso on dim_week (iso_year, iso_week)`,
		`create table if not exists dim_product (
			id serial primary key,
			product_line varchar(50) not null default '',
			product_group varchar(100) not null,
			category varchar(100) not null,
			target_margin numeric(5,4),
			created_at timestamp with time zone default current_timestamp,
			updated_at timestamp with time zone default null,
			constraint uniq_dim_product_group_category unique (product_group, category),
			constraint chk_dim_product_target_margin check (target_margin is null or (target_margin >= 0 and target_margin <= 1))
		)`,
		`create table if not exists dim_job (
			id serial primary key,
			job_num varchar(50) not null,
			sales_order_num varchar(50),
			part_num varchar(100),
			product_id integer references dim_product (id),
			job_closed boolean not null default false,
			created_at timestamp with time zone default current_timestamp,
			updated_at timestamp with time zone default null,
			constraint uniq_dim_job_job_num unique (job_num)
		)`,
		`create index if not exists idx_dim_job_product_id on dim_job (product_id)`,
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
	return "202510060900_weeklyDimensions"
}
