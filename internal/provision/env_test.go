package provision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wgprov/internal/apperr"
	"wgprov/internal/db/dbtest"
	"wgprov/internal/keygen"
	"wgprov/internal/logs"
	"wgprov/internal/metrics"
	"wgprov/internal/models"
	"wgprov/internal/pool"
	"wgprov/internal/repo"
	"wgprov/internal/wgsync"
)

var (
	alice = Caller{OwnerID: "u-alice", Name: "alice"}
	bob   = Caller{OwnerID: "u-bob", Name: "bob"}
	root  = Caller{OwnerID: "u-root", Name: "root", Admin: true}
)

type env struct {
	t     *testing.T
	db    *gorm.DB
	pool  *pool.Pool
	peers *repo.PeerStore
	tool  *wgsync.MemTool
	iface *models.InterfaceConfig
	audit *sinkRec
	m     *metrics.Metrics
}

func newEnv(t *testing.T, address, subnet string) *env {
	t.Helper()
	logs.Discard()

	gdb := dbtest.New(t)
	res, err := Bootstrap(context.Background(), gdb, keygen.Native{}, BootstrapConfig{
		InterfaceName: "wg0",
		Address:       address,
		ListenPort:    51820,
		PoolSubnet:    subnet,
	})
	require.NoError(t, err)

	return &env{
		t:     t,
		db:    gdb,
		pool:  pool.New(gdb),
		peers: repo.NewPeerStore(gdb),
		tool:  wgsync.NewMemTool("wg0"),
		iface: res.Interface,
		audit: &sinkRec{},
		m:     metrics.New(),
	}
}

// service wires a Service over the env; mod may swap any dependency.
func (e *env) service(mod func(*Deps, *Options)) *Service {
	d := Deps{
		Pool:      e.pool,
		Keys:      keygen.Native{},
		Peers:     e.peers,
		Sync:      wgsync.New(e.tool, wgsync.WithTimeout(time.Second)),
		Interface: e.iface,
		Audit:     e.audit,
		Metrics:   e.m,
	}
	o := Options{CompensationTimeout: 2 * time.Second}
	if mod != nil {
		mod(&d, &o)
	}
	return New(d, o)
}

func (e *env) free() []string {
	e.t.Helper()
	out, err := e.pool.Free(context.Background())
	require.NoError(e.t, err)
	return out
}

func (e *env) assigned() []string {
	e.t.Helper()
	out, err := e.pool.Assigned(context.Background())
	require.NoError(e.t, err)
	return out
}

func (e *env) all() []models.Peer {
	e.t.Helper()
	out, err := e.peers.List(context.Background())
	require.NoError(e.t, err)
	return out
}

func (e *env) boundTo(key string) string {
	addrs, ok := e.tool.Peer("wg0", key)
	if !ok || len(addrs) != 1 {
		return ""
	}
	return addrs[0]
}

type sinkRec struct {
	mu      sync.Mutex
	actions []string
	actors  []string
}

func (s *sinkRec) Record(actor, action, target string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action+" "+target)
	s.actors = append(s.actors, actor)
}

func (s *sinkRec) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

type brokenKeys struct{}

func (brokenKeys) Generate(context.Context) (keygen.Pair, error) {
	return keygen.Pair{}, apperr.Wrap(apperr.KindKeyGenerationFailed, errKeys, "genkey")
}

// flakyRegistry fails the selected writes.
type flakyRegistry struct {
	Registry
	createErr, updateErr, deleteErr error
	// vanish deletes the record on Update, as a concurrent remove would
	vanish bool
}

func (f *flakyRegistry) Create(ctx context.Context, p *models.Peer) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Registry.Create(ctx, p)
}

func (f *flakyRegistry) Update(ctx context.Context, p *models.Peer) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.vanish {
		if err := f.Registry.Delete(ctx, p.ID); err != nil {
			return err
		}
	}
	return f.Registry.Update(ctx, p)
}

func (f *flakyRegistry) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Registry.Delete(ctx, id)
}

type flakyPool struct {
	Pool
	releaseErr error
}

func (f *flakyPool) Release(ctx context.Context, addr string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	return f.Pool.Release(ctx, addr)
}

var (
	errKeys   = errors.New("wg genkey: exit status 1")
	errDB     = errors.New("database is gone")
	errDevice = errors.New("wg set: exit status 1")
)

func strp(s string) *string { return &s }
