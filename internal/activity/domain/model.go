package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Category string

const (
	CategorySubscription Category = "subscription"
	CategoryInvoice      Category = "invoice"
	CategoryPayment      Category = "payment"
	CategoryScheduler    Category = "scheduler"
	CategorySystem       Category = "system"
)

// SystemLog is an append-only record of a significant billing transition.
type SystemLog struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Level     Level             `gorm:"type:text;not null" json:"level"`
	Category  Category          `gorm:"type:text;not null;index" json:"category"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	CompanyID *snowflake.ID     `gorm:"column:company_id;index" json:"company_id,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
