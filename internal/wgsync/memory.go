package wgsync

import (
	"context"
	"sort"
	"sync"

	"wgprov/internal/apperr"
)

// Verb names a Tool method for failure injection.
type Verb string

const (
	VerbApply Verb = "apply"
	VerbSave  Verb = "save"
	VerbList  Verb = "list"
)

// MemTool is an in-process interface: devices are maps of public key to
// allowed addresses. Failures can be injected per verb.
type MemTool struct {
	mu       sync.Mutex
	devices  map[string]map[string][]string
	saved    map[string]int
	failures map[Verb]error
	block    map[Verb]chan struct{}
}

func NewMemTool(ifaces ...string) *MemTool {
	m := &MemTool{
		devices:  make(map[string]map[string][]string),
		saved:    make(map[string]int),
		failures: make(map[Verb]error),
		block:    make(map[Verb]chan struct{}),
	}
	for _, i := range ifaces {
		m.devices[i] = make(map[string][]string)
	}
	return m
}

// Fail makes every call of verb return err; a nil err clears it.
func (m *MemTool) Fail(v Verb, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, v)
		return
	}
	m.failures[v] = err
}

// Hang makes calls of verb block until ctx is done or the returned func is called.
func (m *MemTool) Hang(v Verb) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block[v] = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.block, v)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *MemTool) enter(ctx context.Context, v Verb) error {
	m.mu.Lock()
	ch := m.block[v]
	m.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return apperr.Wrap(apperr.KindInterfaceToolTimeout, ctx.Err(), "%s", v)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[v]
}

func (m *MemTool) Apply(ctx context.Context, iface string, changes []PeerChange) error {
	if err := m.enter(ctx, VerbApply); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[iface]
	if !ok {
		return apperr.New(apperr.KindInterfaceToolFailed, "device %s not found", iface)
	}
	for _, c := range changes {
		if c.Remove {
			delete(dev, c.PublicKey)
			continue
		}
		dev[c.PublicKey] = []string{c.Address}
	}
	return nil
}

func (m *MemTool) Save(ctx context.Context, iface string) error {
	if err := m.enter(ctx, VerbSave); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[iface]; !ok {
		return apperr.New(apperr.KindInterfaceToolFailed, "device %s not found", iface)
	}
	m.saved[iface]++
	return nil
}

func (m *MemTool) List(ctx context.Context, iface string) ([]Binding, error) {
	if err := m.enter(ctx, VerbList); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[iface]
	if !ok {
		return nil, apperr.New(apperr.KindInterfaceToolFailed, "device %s not found", iface)
	}
	out := make([]Binding, 0, len(dev))
	for k, addrs := range dev {
		out = append(out, Binding{PublicKey: k, Addresses: append([]string(nil), addrs...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out, nil
}

// Peer returns the addresses bound to key on iface.
func (m *MemTool) Peer(iface, key string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs, ok := m.devices[iface][key]
	return addrs, ok
}

// Put binds key directly, bypassing failure injection (simulates operator edits).
func (m *MemTool) Put(iface, key, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.devices[iface] == nil {
		m.devices[iface] = make(map[string][]string)
	}
	m.devices[iface][key] = []string{addr}
}

// Drop removes key directly (simulates drift).
func (m *MemTool) Drop(iface, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices[iface], key)
}

func (m *MemTool) PeerCount(iface string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices[iface])
}

func (m *MemTool) Saves(iface string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[iface]
}
