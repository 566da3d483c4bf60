package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wgprov/internal/apperr"
	"wgprov/internal/models"
	"wgprov/internal/pool"
)

// AddPeer reserves an address, generates keys, persists the record and
// binds it on the interface. Any failure restores the pre-operation state.
func (s *Service) AddPeer(ctx context.Context, c Caller, req AddRequest) (_ *models.Peer, err error) {
	defer func() { s.m.RecordOperation("add", err) }()

	iface, err := s.Interface()
	if err != nil {
		return nil, err
	}
	if err := checkCaller(c); err != nil {
		return nil, err
	}
	name, err := checkName(req.Name)
	if err != nil {
		return nil, err
	}
	owner := c.OwnerID
	if o := strings.TrimSpace(req.OwnerID); o != "" && o != c.OwnerID {
		if !c.Admin {
			return nil, apperr.New(apperr.KindInvalidArgument, "only admins may add peers for another owner")
		}
		owner = o
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	log := s.log.WithFields(logrus.Fields{"op": "add", "owner": owner, "peer": name})

	// Reserving
	addr, err := s.pool.Reserve(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	release := func(cctx context.Context) error { return s.pool.Release(cctx, addr) }

	// KeyGenerating
	pair, err := s.keys.Generate(ctx)
	if err != nil {
		s.compensate(ctx, "add", "release", release)
		return nil, err
	}

	// Persisting
	p := &models.Peer{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Name:        name,
		PublicKey:   pair.PublicKey,
		PrivateKey:  pair.PrivateKey,
		Address:     addr,
		InterfaceID: iface.ID,
	}
	if err := s.peers.Create(ctx, p); err != nil {
		s.compensate(ctx, "add", "release", release)
		return nil, err
	}

	// Binding
	if err := s.wg.Bind(ctx, iface.InterfaceName, p.PublicKey, addr); err != nil {
		log.WithError(err).Warn("bind failed, rolling back")
		// apply мог пройти, а save — нет
		s.compensate(ctx, "add", "unbind", func(cctx context.Context) error {
			return s.wg.Unbind(cctx, iface.InterfaceName, p.PublicKey)
		})
		s.compensate(ctx, "add", "delete", func(cctx context.Context) error {
			return s.peers.Delete(cctx, p.ID)
		})
		s.compensate(ctx, "add", "release", release)
		return nil, err
	}

	log.WithFields(logrus.Fields{"id": p.ID, "address": addr}).Info("peer added")
	s.audit.Record(c.actor(), "Added peer", p.Name, map[string]any{"id": p.ID, "address": addr, "owner": owner})
	return p, nil
}

// RemovePeer unbinds the peer, deletes its record and frees its address.
// An unbind failure aborts before anything is touched.
func (s *Service) RemovePeer(ctx context.Context, c Caller, id string) (err error) {
	defer func() { s.m.RecordOperation("remove", err) }()

	iface, err := s.Interface()
	if err != nil {
		return err
	}

	s.gate.RLock()
	defer s.gate.RUnlock()
	defer s.locks.lock(strings.TrimSpace(id))()

	// Locating: запись читается уже под блокировкой пира
	p, err := s.locate(ctx, c, id)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"op": "remove", "id": p.ID, "peer": p.Name, "address": p.Address})

	// Unbinding
	if err := s.wg.Unbind(ctx, iface.InterfaceName, p.PublicKey); err != nil {
		return err
	}

	// Deleting
	if err := s.peers.Delete(ctx, p.ID); err != nil {
		log.WithError(err).Warn("delete failed, restoring binding")
		s.compensate(ctx, "remove", "bind", func(cctx context.Context) error {
			return s.wg.Bind(cctx, iface.InterfaceName, p.PublicKey, p.Address)
		})
		return err
	}

	// ReleasingAddress
	s.releaseDetached(ctx, "remove", p.Address)

	log.Info("peer removed")
	s.audit.Record(c.actor(), "Removed peer", p.Name, map[string]any{"id": p.ID, "address": p.Address})
	return nil
}

// UpdatePeer renames a peer, moves it to another address and/or rotates its
// keys. The new address is reserved before anything else changes and the
// old one is released last, so a crash leaves either binding live.
func (s *Service) UpdatePeer(ctx context.Context, c Caller, id string, req UpdateRequest) (_ *models.Peer, err error) {
	defer func() { s.m.RecordOperation("update", err) }()

	iface, err := s.Interface()
	if err != nil {
		return nil, err
	}

	s.gate.RLock()
	defer s.gate.RUnlock()
	defer s.locks.lock(strings.TrimSpace(id))()

	p, err := s.locate(ctx, c, id)
	if err != nil {
		return nil, err
	}
	next := *p
	if req.Name != nil {
		if next.Name, err = checkName(*req.Name); err != nil {
			return nil, err
		}
	}

	moving := false
	if req.Address != nil && strings.TrimSpace(*req.Address) != "" {
		a, err := pool.Normalize(strings.TrimSpace(*req.Address))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAddressUnavailable, err, "update %s", p.Name)
		}
		// тот же адрес — пул не трогаем
		moving = a.String() != p.Address
	}

	log := s.log.WithFields(logrus.Fields{"op": "update", "id": p.ID, "peer": p.Name})

	if moving {
		if next.Address, err = s.pool.Reserve(ctx, *req.Address); err != nil {
			return nil, err
		}
	}
	releaseNew := func() {
		if moving {
			s.compensate(ctx, "update", "release", func(cctx context.Context) error {
				return s.pool.Release(cctx, next.Address)
			})
		}
	}

	if req.RotateKeys {
		pair, err := s.keys.Generate(ctx)
		if err != nil {
			releaseNew()
			return nil, err
		}
		next.PrivateKey, next.PublicKey = pair.PrivateKey, pair.PublicKey
	}

	rebinding := moving || req.RotateKeys
	rebindBack := func() {
		s.compensate(ctx, "update", "rebind", func(cctx context.Context) error {
			return s.wg.Rebind(cctx, iface.InterfaceName, next.PublicKey, p.PublicKey, p.Address)
		})
	}

	if rebinding {
		if err := s.wg.Rebind(ctx, iface.InterfaceName, p.PublicKey, next.PublicKey, next.Address); err != nil {
			log.WithError(err).Warn("rebind failed, rolling back")
			rebindBack()
			releaseNew()
			return nil, err
		}
	}

	if err := s.peers.Update(ctx, &next); err != nil {
		log.WithError(err).Warn("persist failed, rolling back")
		switch {
		case rebinding && errors.Is(err, apperr.ErrPeerNotFound):
			// записи больше нет: старый ключ не возвращаем
			s.compensate(ctx, "update", "unbind", func(cctx context.Context) error {
				return s.wg.Unbind(cctx, iface.InterfaceName, next.PublicKey)
			})
		case rebinding:
			rebindBack()
		}
		releaseNew()
		return nil, err
	}

	if moving {
		s.releaseDetached(ctx, "update", p.Address)
	}

	log.WithFields(logrus.Fields{"address": next.Address, "rotated": req.RotateKeys}).Info("peer updated")
	s.audit.Record(c.actor(), "Updated peer", next.Name, map[string]any{
		"id":           next.ID,
		"address":      next.Address,
		"prev_address": p.Address,
		"rotated":      req.RotateKeys,
	})
	return &next, nil
}
