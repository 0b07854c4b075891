package _202510060930_auditLog

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists audit_log (
			id serial primary key,
			timestamp timestamp with time zone not null default current_timestamp,
			actor varchar(255) not null,
			action varchar(20) not null,
			entity varchar(50),
			details jsonb
		)`,
		`create index if not exists idx_audit_log_timestamp on audit_log (timestamp desc)`,
		`create index if not exists idx_audit_log_action on audit_log (action)`,
		`create or replace function audit_log_is_append_only() returns trigger as $$
		begin
			raise exception 'audit_log is append-only';
		end;
		$$ language plpgsql`,
		`drop trigger if exists trg_audit_log_append_only on audit_log`,
		`create trigger trg_audit_log_append_only
			before update or delete on audit_log
			for each row execute function audit_log_is_append_only()`,
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
	return "202510060930_auditLog"
}
