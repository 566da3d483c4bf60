package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wgprov/internal/apperr"
	"wgprov/internal/models"
)

// PeerStore — реестр пиров. Адресами пула не управляет: хранит то, что дали.
type PeerStore struct{ db *gorm.DB }

func NewPeerStore(db *gorm.DB) *PeerStore { return &PeerStore{db: db} }

func (s *PeerStore) Create(ctx context.Context, p *models.Peer) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return translate(err, "create peer %s", p.Name)
	}
	return nil
}

func (s *PeerStore) Get(ctx context.Context, id string) (*models.Peer, error) {
	var p models.Peer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindPeerNotFound, "peer %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get peer %s: %w", id, err)
	}
	return &p, nil
}

func (s *PeerStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Peer, error) {
	var out []models.Peer
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list peers of %s: %w", ownerID, err)
	}
	return out, nil
}

func (s *PeerStore) List(ctx context.Context) ([]models.Peer, error) {
	var out []models.Peer
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return out, nil
}

// Update сохраняет имя, адрес и ключи пира.
func (s *PeerStore) Update(ctx context.Context, p *models.Peer) error {
	p.UpdatedAt = time.Now().UTC()
	// struct-апдейт: map обходит сериализатор private_key
	res := s.db.WithContext(ctx).
		Model(p).
		Select("name", "address", "public_key", "private_key", "updated_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error, "update peer %s", p.ID)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindPeerNotFound, "peer %s not found", p.ID)
	}
	return nil
}

func (s *PeerStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Peer{})
	if res.Error != nil {
		return fmt.Errorf("delete peer %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindPeerNotFound, "peer %s not found", id)
	}
	return nil
}

// translate превращает нарушение уникальности в Conflict.
func translate(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindConflict, err, format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
