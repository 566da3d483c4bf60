package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID        uint   `gorm:"primaryKey"`
	Actor     string `gorm:"index;size:255;not null"`
	Action    string `gorm:"index;size:64;not null"`
	Target    string `gorm:"size:255"`
	Details   datatypes.JSONMap
	CreatedAt time.Time `gorm:"index"`
}

// All перечисляет модели для AutoMigrate.
func All() []any {
	return []any{
		&InterfaceConfig{},
		&AddressPoolEntry{},
		&Peer{},
		&AuditLog{},
	}
}
