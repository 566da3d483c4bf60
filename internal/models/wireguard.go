package models

import (
	"time"

	// регистрирует сериализатор sealed
	_ "wgprov/internal/secrets"
)

// Peer — запись о пире: владелец, ключи и адрес из пула.
type Peer struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string    `gorm:"index;size:64;not null" json:"owner_id"`
	Name        string    `gorm:"index;size:255;not null" json:"name"`
	PublicKey   string    `gorm:"uniqueIndex;size:64;not null" json:"public_key"`
	PrivateKey  string    `gorm:"size:160;not null;serializer:sealed" json:"-"`
	Address     string    `gorm:"uniqueIndex;size:45;not null" json:"address"`
	InterfaceID uint      `gorm:"index;not null" json:"interface_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InterfaceConfig — единственная строка с параметрами управляемого интерфейса.
type InterfaceConfig struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Entry         int    `gorm:"uniqueIndex;not null;default:1;check:single_row_check,entry = 1" json:"-"`
	ServerName    string `gorm:"uniqueIndex;size:100;not null" json:"server_name"`
	InterfaceName string `gorm:"uniqueIndex;size:100;not null" json:"interface_name"`
	Address       string `gorm:"size:100;not null" json:"address"` // "10.0.0.1/24"
	ListenPort    int    `gorm:"not null" json:"listen_port"`
	PrivateKey    string `gorm:"size:160;not null;serializer:sealed" json:"-"`
	PublicKey     string `gorm:"size:64;not null" json:"public_key"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (InterfaceConfig) TableName() string { return "wg_server_config" }
