package provision

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"wgprov/internal/wgsync"
)

// ReconcileReport — что было исправлено за прогон.
type ReconcileReport struct {
	Peers    int      `json:"peers"`
	Rebound  int      `json:"rebound"`  // записи, которых не было на интерфейсе или с другим адресом
	Unknown  int      `json:"unknown"`  // живые ключи без записи
	Pruned   int      `json:"pruned"`   // из них сняты с интерфейса
	Claimed  int      `json:"claimed"`  // адрес записи был свободен в пуле
	Released int      `json:"released"` // адрес занят в пуле, но записи нет
	Errors   []string `json:"errors,omitempty"`
}

// Reconcile repairs drift between the registry (the source of truth), the
// pool and the live interface. It runs exclusively with provisioning
// operations, and concurrent calls with the same prune flag share one run.
func (s *Service) Reconcile(ctx context.Context, prune bool) (ReconcileReport, error) {
	v, err, _ := s.sf.Do("reconcile:"+strconv.FormatBool(prune), func() (any, error) {
		return s.reconcile(ctx, prune)
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	return v.(ReconcileReport), nil
}

func (s *Service) reconcile(ctx context.Context, prune bool) (rep ReconcileReport, err error) {
	defer func() { s.m.RecordOperation("reconcile", err) }()

	iface, err := s.Interface()
	if err != nil {
		return rep, err
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	log := s.log.WithFields(logrus.Fields{"op": "reconcile", "iface": iface.InterfaceName, "prune": prune})

	peers, err := s.peers.List(ctx)
	if err != nil {
		return rep, err
	}
	live, err := s.wg.Bindings(ctx, iface.InterfaceName)
	if err != nil {
		return rep, err
	}
	assigned, err := s.pool.Assigned(ctx)
	if err != nil {
		return rep, err
	}
	rep.Peers = len(peers)

	fail := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		rep.Errors = append(rep.Errors, msg)
		log.Warn(msg)
	}

	byKey := make(map[string]wgsync.Binding, len(live))
	for _, b := range live {
		byKey[b.PublicKey] = b
	}
	known := make(map[string]struct{}, len(peers))
	inUse := make(map[string]struct{}, len(peers))

	// 1) записи → интерфейс и пул
	for _, p := range peers {
		known[p.PublicKey] = struct{}{}
		inUse[p.Address] = struct{}{}

		if b, ok := byKey[p.PublicKey]; !ok || len(b.Addresses) != 1 || b.Addresses[0] != p.Address {
			if err := s.wg.Bind(ctx, iface.InterfaceName, p.PublicKey, p.Address); err != nil {
				fail("rebind %s (%s): %v", p.Name, p.Address, err)
			} else {
				rep.Rebound++
			}
		}

		claimed, err := s.pool.Claim(ctx, p.Address)
		switch {
		case err != nil:
			fail("claim %s: %v", p.Address, err)
		case claimed:
			rep.Claimed++
		}
	}

	// 2) живые ключи без записи
	for _, b := range live {
		if _, ok := known[b.PublicKey]; ok {
			continue
		}
		rep.Unknown++
		if !prune {
			log.WithField("key", b.PublicKey).Warn("peer on interface has no record")
			continue
		}
		if err := s.wg.Unbind(ctx, iface.InterfaceName, b.PublicKey); err != nil {
			fail("prune %s: %v", b.PublicKey, err)
			continue
		}
		rep.Pruned++
	}

	// 3) занятые адреса без записи
	for _, a := range assigned {
		if _, ok := inUse[a]; ok {
			continue
		}
		if err := s.pool.Release(ctx, a); err != nil {
			fail("release %s: %v", a, err)
			continue
		}
		rep.Released++
	}

	s.m.AddRepairs("rebound", rep.Rebound)
	s.m.AddRepairs("pruned", rep.Pruned)
	s.m.AddRepairs("claimed", rep.Claimed)
	s.m.AddRepairs("released", rep.Released)
	if st, err := s.pool.Stats(ctx); err == nil {
		s.m.SetPool(st.Free, st.Assigned)
	}

	log.WithFields(logrus.Fields{
		"peers":    rep.Peers,
		"rebound":  rep.Rebound,
		"unknown":  rep.Unknown,
		"pruned":   rep.Pruned,
		"claimed":  rep.Claimed,
		"released": rep.Released,
		"errors":   len(rep.Errors),
	}).Info("reconcile finished")
	return rep, nil
}
