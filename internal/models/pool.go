package models

// AddressPoolEntry — один адрес пула. Ordinal — числовое значение IPv4,
// по нему выбирается «младший» свободный адрес.
type AddressPoolEntry struct {
	Address  string `gorm:"primaryKey;size:45"`
	Ordinal  int64  `gorm:"index;not null"`
	Assigned bool   `gorm:"index;not null;default:false"`
}

func (AddressPoolEntry) TableName() string { return "wireguard_ip_pool" }
