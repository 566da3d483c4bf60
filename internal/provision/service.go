// Package provision coordinates the address pool, key generator, peer
// registry and interface synchronizer into add, update and remove workflows.
//
// Each workflow mutates three resources that fail independently. Steps run
// in a fixed order and every failure after the first mutation is undone by
// compensating actions that run on a detached context, so an abandoned
// request still restores the pre-operation state.
package provision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"wgprov/internal/apperr"
	"wgprov/internal/audit"
	"wgprov/internal/keygen"
	"wgprov/internal/logs"
	"wgprov/internal/metrics"
	"wgprov/internal/models"
	"wgprov/internal/pool"
	"wgprov/internal/render/wgconf"
	"wgprov/internal/wgsync"
)

const (
	DefaultCompensationTimeout = 30 * time.Second
	maxNameLen                 = 255
)

// Pool is the part of the address pool the orchestrator drives.
type Pool interface {
	Reserve(ctx context.Context, requested string) (string, error)
	Release(ctx context.Context, address string) error
	Claim(ctx context.Context, address string) (bool, error)
	Assigned(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (pool.Stats, error)
}

// Registry is the durable peer record store.
type Registry interface {
	Create(ctx context.Context, p *models.Peer) error
	Get(ctx context.Context, id string) (*models.Peer, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Peer, error)
	List(ctx context.Context) ([]models.Peer, error)
	Update(ctx context.Context, p *models.Peer) error
	Delete(ctx context.Context, id string) error
}

// Binder applies bindings on the live interface.
type Binder interface {
	Bind(ctx context.Context, iface, publicKey, address string) error
	Unbind(ctx context.Context, iface, publicKey string) error
	Rebind(ctx context.Context, iface, oldKey, newKey, address string) error
	Bindings(ctx context.Context, iface string) ([]wgsync.Binding, error)
}

// Caller — личность, которую передаёт слой аутентификации. Ей доверяем как есть.
type Caller struct {
	OwnerID string
	Name    string
	Admin   bool
}

func (c Caller) actor() string {
	if c.Name != "" {
		return c.Name
	}
	return c.OwnerID
}

type AddRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"` // пусто = первый свободный
	OwnerID string `json:"owner_id,omitempty"`
}

// UpdateRequest: nil fields are left unchanged.
type UpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Address    *string `json:"address,omitempty"`
	RotateKeys bool    `json:"rotate_keys,omitempty"`
}

type Deps struct {
	Pool      Pool
	Keys      keygen.Generator
	Peers     Registry
	Sync      Binder
	Interface *models.InterfaceConfig // nil: interface not configured
	Audit     audit.Sink
	Metrics   *metrics.Metrics
}

type Options struct {
	CompensationTimeout time.Duration
	Client              wgconf.Client
}

type Service struct {
	pool  Pool
	keys  keygen.Generator
	peers Registry
	wg    Binder
	iface *models.InterfaceConfig
	audit audit.Sink
	m     *metrics.Metrics
	log   *logrus.Entry

	compTimeout time.Duration
	client      wgconf.Client

	// операции берут RLock, reconcile — Lock
	gate sync.RWMutex
	sf   singleflight.Group
	// update/remove одного пира идут по очереди
	locks peerLocks
}

func New(d Deps, opts Options) *Service {
	s := &Service{
		pool:        d.Pool,
		keys:        d.Keys,
		peers:       d.Peers,
		wg:          d.Sync,
		iface:       d.Interface,
		audit:       d.Audit,
		m:           d.Metrics,
		log:         logs.Logger.WithField("component", "provision"),
		compTimeout: opts.CompensationTimeout,
		client:      opts.Client,
	}
	if s.audit == nil {
		s.audit = audit.Discard{}
	}
	if s.m == nil {
		s.m = metrics.New()
	}
	if s.compTimeout <= 0 {
		s.compTimeout = DefaultCompensationTimeout
	}
	return s
}

// Interface returns the configuration the service was started with.
func (s *Service) Interface() (*models.InterfaceConfig, error) {
	if s.iface == nil || strings.TrimSpace(s.iface.InterfaceName) == "" {
		return nil, apperr.New(apperr.KindInterfaceNotConfigured, "wireguard server config not found")
	}
	return s.iface, nil
}

// GetPeer returns a peer visible to c.
func (s *Service) GetPeer(ctx context.Context, c Caller, id string) (*models.Peer, error) {
	return s.locate(ctx, c, id)
}

// ListPeers lists the caller's peers. Admins get every peer, or only the
// peers of owner when it is set.
func (s *Service) ListPeers(ctx context.Context, c Caller, owner string) ([]models.Peer, error) {
	if err := checkCaller(c); err != nil {
		return nil, err
	}
	if !c.Admin {
		return s.peers.ListByOwner(ctx, c.OwnerID)
	}
	if owner != "" {
		return s.peers.ListByOwner(ctx, owner)
	}
	return s.peers.List(ctx)
}

// PeerConfig renders the wg-quick file the peer imports.
func (s *Service) PeerConfig(ctx context.Context, c Caller, id string) (*models.Peer, []byte, error) {
	iface, err := s.Interface()
	if err != nil {
		return nil, nil, err
	}
	p, err := s.locate(ctx, c, id)
	if err != nil {
		return nil, nil, err
	}
	out, err := wgconf.ClientConfig(p, iface, s.client)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, err, "render config for %s", p.Name)
	}
	return p, out, nil
}

func (s *Service) PoolStats(ctx context.Context) (pool.Stats, error) {
	st, err := s.pool.Stats(ctx)
	if err != nil {
		return pool.Stats{}, err
	}
	s.m.SetPool(st.Free, st.Assigned)
	return st, nil
}

// locate loads a peer; peers of other owners are invisible to non-admins.
func (s *Service) locate(ctx context.Context, c Caller, id string) (*models.Peer, error) {
	if err := checkCaller(c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.KindPeerNotFound, "peer id is empty")
	}
	p, err := s.peers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Admin && p.OwnerID != c.OwnerID {
		return nil, apperr.New(apperr.KindPeerNotFound, "peer %s not found", id)
	}
	return p, nil
}

// compensate runs an undo step to completion regardless of the caller's
// context. Its failure is logged and counted; the caller still gets the
// error that triggered it.
func (s *Service) compensate(ctx context.Context, op, step string, fn func(context.Context) error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compTimeout)
	defer cancel()

	err := fn(cctx)
	s.m.RecordCompensation(op, step, err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"op": op, "step": step}).
			Error("compensation failed, reconcile will repair")
		return
	}
	s.log.WithFields(logrus.Fields{"op": op, "step": step}).Debug("compensated")
}

// releaseDetached frees an address that is no longer referenced. A failure
// leaves the address assigned without a record, which reconcile repairs.
func (s *Service) releaseDetached(ctx context.Context, op, address string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compTimeout)
	defer cancel()

	if err := s.pool.Release(cctx, address); err != nil {
		s.m.RecordReleaseFailure()
		s.log.WithError(err).WithFields(logrus.Fields{"op": op, "address": address}).
			Warn("address left assigned")
	}
}

func checkCaller(c Caller) error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return apperr.New(apperr.KindInvalidArgument, "caller identity is missing")
	}
	return nil
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperr.New(apperr.KindInvalidArgument, "peer name is required")
	case len(name) > maxNameLen:
		return "", apperr.New(apperr.KindInvalidArgument, "peer name is longer than %d bytes", maxNameLen)
	}
	return name, nil
}
