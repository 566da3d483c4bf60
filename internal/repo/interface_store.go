package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"wgprov/internal/apperr"
	"wgprov/internal/models"
)

// InterfaceStore хранит единственную строку конфигурации интерфейса.
type InterfaceStore struct{ db *gorm.DB }

func NewInterfaceStore(db *gorm.DB) *InterfaceStore { return &InterfaceStore{db: db} }

func (s *InterfaceStore) Get(ctx context.Context) (*models.InterfaceConfig, error) {
	var c models.InterfaceConfig
	err := s.db.WithContext(ctx).Where("entry = ?", 1).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindInterfaceNotConfigured, "wireguard server config not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get interface config: %w", err)
	}
	return &c, nil
}

// GetOrCreate возвращает существующую строку или сохраняет результат create.
// create вызывается только если строки нет.
func (s *InterfaceStore) GetOrCreate(ctx context.Context, create func() (*models.InterfaceConfig, error)) (*models.InterfaceConfig, bool, error) {
	c, err := s.Get(ctx)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, apperr.ErrInterfaceNotConfigured) {
		return nil, false, err
	}

	nc, err := create()
	if err != nil {
		return nil, false, err
	}
	nc.Entry = 1
	if err := s.db.WithContext(ctx).Create(nc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// параллельный старт успел раньше
			c, gerr := s.Get(ctx)
			return c, false, gerr
		}
		return nil, false, fmt.Errorf("create interface config: %w", err)
	}
	return nc, true, nil
}
