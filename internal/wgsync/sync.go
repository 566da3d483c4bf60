// Package wgsync applies peer bindings to the live WireGuard interface.
//
// Every mutation is Apply followed by Save under a per-interface mutex, so
// concurrent provisioning requests never interleave their tool invocations
// on the same device. The synchronizer never retries: failures are reported
// as InterfaceToolFailed or InterfaceToolTimeout and the caller compensates.
package wgsync

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"time"

	"wgprov/internal/apperr"
)

const DefaultTimeout = 10 * time.Second

// Observer receives the outcome of every tool invocation (metrics hook).
type Observer func(verb string, took time.Duration, err error)

type Option func(*Synchronizer)

func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Synchronizer) { s.observe = o }
}

type Synchronizer struct {
	tool    Tool
	timeout time.Duration
	observe Observer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(tool Tool, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		tool:    tool,
		timeout: DefaultTimeout,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bind allows address for publicKey on iface and persists the interface.
func (s *Synchronizer) Bind(ctx context.Context, iface, publicKey, address string) error {
	addr, err := checkBinding(publicKey, address)
	if err != nil {
		return err
	}
	return s.mutate(ctx, iface, []PeerChange{{PublicKey: publicKey, Address: addr}})
}

// Unbind removes publicKey from iface and persists the interface.
func (s *Synchronizer) Unbind(ctx context.Context, iface, publicKey string) error {
	if strings.TrimSpace(publicKey) == "" {
		return apperr.New(apperr.KindInterfaceToolFailed, "empty public key")
	}
	return s.mutate(ctx, iface, []PeerChange{{PublicKey: publicKey, Remove: true}})
}

// Rebind replaces oldKey's binding with newKey→address. The removal precedes
// the addition within the same invocation; with equal keys only the allowed
// address is replaced.
func (s *Synchronizer) Rebind(ctx context.Context, iface, oldKey, newKey, address string) error {
	addr, err := checkBinding(newKey, address)
	if err != nil {
		return err
	}
	changes := []PeerChange{{PublicKey: newKey, Address: addr}}
	if oldKey != "" && oldKey != newKey {
		changes = append([]PeerChange{{PublicKey: oldKey, Remove: true}}, changes...)
	}
	return s.mutate(ctx, iface, changes)
}

// Bindings lists the peers currently live on iface.
func (s *Synchronizer) Bindings(ctx context.Context, iface string) ([]Binding, error) {
	unlock := s.lock(iface)
	defer unlock()

	var out []Binding
	err := s.call(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = s.tool.List(ctx, iface)
		return err
	})
	return out, err
}

func (s *Synchronizer) mutate(ctx context.Context, iface string, changes []PeerChange) error {
	if strings.TrimSpace(iface) == "" {
		return apperr.New(apperr.KindInterfaceNotConfigured, "no interface name")
	}
	unlock := s.lock(iface)
	defer unlock()

	if err := s.call(ctx, "apply", func(ctx context.Context) error {
		return s.tool.Apply(ctx, iface, changes)
	}); err != nil {
		return err
	}
	return s.call(ctx, "save", func(ctx context.Context) error {
		return s.tool.Save(ctx, iface)
	})
}

// call runs one invocation under the tool timeout and normalizes its error.
func (s *Synchronizer) call(ctx context.Context, verb string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	if err != nil {
		switch {
		case errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			if !errors.Is(err, apperr.ErrInterfaceToolTimeout) {
				err = apperr.Wrap(apperr.KindInterfaceToolTimeout, err, "%s timed out after %s", verb, s.timeout)
			}
		case apperr.KindOf(err) == apperr.KindInternal:
			err = apperr.Wrap(apperr.KindInterfaceToolFailed, err, "%s", verb)
		}
	}
	if s.observe != nil {
		s.observe(verb, time.Since(start), err)
	}
	return err
}

func (s *Synchronizer) lock(iface string) func() {
	s.mu.Lock()
	l, ok := s.locks[iface]
	if !ok {
		l = &sync.Mutex{}
		s.locks[iface] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func checkBinding(publicKey, address string) (string, error) {
	if strings.TrimSpace(publicKey) == "" {
		return "", apperr.New(apperr.KindInterfaceToolFailed, "empty public key")
	}
	a, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil || !a.Unmap().Is4() {
		return "", apperr.New(apperr.KindInterfaceToolFailed, "invalid peer address %q", address)
	}
	return a.Unmap().String(), nil
}
