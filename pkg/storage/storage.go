package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditStore interface {
	// InsertAuditEntry appends an entry using tx, or the store's own
	// connection when tx is nil.
	InsertAuditEntry(tx *gorm.DB, actor string, action AuditAction, entity string, details map[string]interface{}) (*AuditEntry, error)

	ListAuditEntries(filter AuditFilter) ([]*AuditEntry, error)
}

type Direction string

const (
	Direction_Inbound  Direction = "INBOUND"
	Direction_Outbound Direction = "OUTBOUND"
)

func (d Direction) String() string {
	return string(d)
}

type AuditAction string

const (
	AuditAction_Upload   AuditAction = "UPLOAD"
	AuditAction_ErpSync  AuditAction = "ERP_SYNC"
	AuditAction_Snapshot AuditAction = "SNAPSHOT"
)

// Tables.
type Week struct {
	Id        uint64 `gorm:"primaryKey"`
	WeekStart time.Time
	WeekEnd   time.Time
	IsoYear   int
	IsoWeek   int
	CreatedAt time.Time
}

func (Week) TableName() string {
	return "dim_week"
}

type Product struct {
	Id           uint64 `gorm:"primaryKey"`
	ProductLine  string
	ProductGroup string
	Category     string
	TargetMargin decimal.NullDecimal `gorm:"type:numeric(5,4)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Product) TableName() string {
	return "dim_product"
}

type Job struct {
	Id            uint64 `gorm:"primaryKey"`
	JobNum        string
	SalesOrderNum *string
	PartNum       *string
	ProductId     *uint64
	JobClosed     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Job) TableName() string {
	return "dim_job"
}

type RevenueFact struct {
	Id         uint64 `gorm:"primaryKey"`
	WeekId     uint64
	ProductId  uint64
	Direction  Direction
	Revenue    decimal.Decimal `gorm:"type:numeric(18,2)"`
	OrderCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RevenueFact) TableName() string {
	return "fact_revenue"
}

type CostFact struct {
	Id           uint64 `gorm:"primaryKey"`
	WeekId       uint64
	JobId        uint64
	LaborHours   decimal.Decimal `gorm:"type:numeric(10,2)"`
	BurdenHours  decimal.Decimal `gorm:"type:numeric(10,2)"`
	DirectLabor  decimal.Decimal `gorm:"type:numeric(18,2)"`
	Burden       decimal.Decimal `gorm:"type:numeric(18,2)"`
	MaterialCost decimal.Decimal `gorm:"type:numeric(18,2)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CostFact) TableName() string {
	return "fact_costs"
}

// TotalCost is direct labor plus burden plus material.
func (c *CostFact) TotalCost() decimal.Decimal {
	return c.DirectLabor.Add(c.Burden).Add(c.MaterialCost)
}

type AuditEntry struct {
	Id        uint64 `gorm:"primaryKey"`
	Timestamp time.Time
	Actor     string
	Action    AuditAction
	Entity    string
	Details   datatypes.JSON
}

func (AuditEntry) TableName() string {
	return "audit_log"
}

// Not tables

type AuditFilter struct {
	Action AuditAction
	Actor  string
	Entity string
	Limit  int
}
