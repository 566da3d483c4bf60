package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wgprov/internal/apperr"
	"wgprov/internal/wgsync"
)

func TestAddRemoveRoundTrip(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()
	before := e.free()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", p.Address)
	assert.Equal(t, "u-alice", p.OwnerID)
	assert.Equal(t, e.iface.ID, p.InterfaceID)
	assert.NotEmpty(t, p.PublicKey)
	assert.NotEmpty(t, p.PrivateKey)
	assert.Equal(t, "10.0.0.2", e.boundTo(p.PublicKey))
	assert.Equal(t, []string{"10.0.0.2"}, e.assigned())
	assert.Equal(t, 1, e.tool.Saves("wg0"))

	require.NoError(t, svc.RemovePeer(ctx, alice, p.ID))

	assert.Equal(t, before, e.free())
	assert.Empty(t, e.all())
	assert.Zero(t, e.tool.PeerCount("wg0"))
	assert.Equal(t, []string{"Added peer n1", "Removed peer n1"}, e.audit.Actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.m.Operations.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.m.Operations.WithLabelValues("remove", "ok")))
}

func TestAddExplicitAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1", Address: "10.0.0.50/32"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.50", p.Address)
	assert.Equal(t, "10.0.0.50", e.boundTo(p.PublicKey))

	free := e.free()
	_, err = svc.AddPeer(ctx, bob, AddRequest{Name: "n2", Address: "10.0.0.50"})
	assert.ErrorIs(t, err, apperr.ErrAddressUnavailable)
	_, err = svc.AddPeer(ctx, bob, AddRequest{Name: "n3", Address: "10.0.0.1"})
	assert.ErrorIs(t, err, apperr.ErrAddressUnavailable, "gateway is not in the pool")
	_, err = svc.AddPeer(ctx, bob, AddRequest{Name: "n4", Address: "not-an-ip"})
	assert.ErrorIs(t, err, apperr.ErrAddressUnavailable)

	assert.Equal(t, free, e.free())
	assert.Len(t, e.all(), 1)
	assert.Equal(t, 1, e.tool.PeerCount("wg0"))
}

func TestAddValidatesInput(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	_, err := svc.AddPeer(ctx, alice, AddRequest{Name: "   "})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.AddPeer(ctx, Caller{}, AddRequest{Name: "n1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.AddPeer(ctx, alice, AddRequest{Name: "n1", OwnerID: "u-bob"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	assert.Len(t, e.free(), 253)
	assert.Empty(t, e.all())
}

func TestAddBindFailureRollsBack(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	before := e.free()

	e.tool.Fail(wgsync.VerbApply, errDevice)
	_, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n1"})

	assert.ErrorIs(t, err, apperr.ErrInterfaceToolFailed)
	assert.Empty(t, e.all())
	assert.Equal(t, before, e.free())
	assert.Zero(t, e.tool.PeerCount("wg0"))
	assert.Empty(t, e.audit.Actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.m.Operations.WithLabelValues("add", "interface_tool_failed")))
}

func TestAddSaveFailureRemovesAppliedPeer(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	before := e.free()

	e.tool.Fail(wgsync.VerbSave, errDevice)
	_, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n1"})

	assert.ErrorIs(t, err, apperr.ErrInterfaceToolFailed)
	assert.Empty(t, e.all())
	assert.Equal(t, before, e.free())
	assert.Zero(t, e.tool.PeerCount("wg0"), "applied peer must be removed again")
}

func TestAddBindTimeoutRollsBack(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(d *Deps, _ *Options) {
		d.Sync = wgsync.New(e.tool, wgsync.WithTimeout(50*time.Millisecond))
	})
	before := e.free()

	release := e.tool.Hang(wgsync.VerbApply)
	defer release()

	_, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n1"})
	assert.ErrorIs(t, err, apperr.ErrInterfaceToolTimeout)
	assert.Empty(t, e.all())
	assert.Equal(t, before, e.free())
}

func TestAddCancelledMidBindStillCompensates(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(_ *Deps, o *Options) {
		o.CompensationTimeout = 200 * time.Millisecond
	})
	before := e.free()

	release := e.tool.Hang(wgsync.VerbApply)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.Error(t, err)
	assert.Empty(t, e.all(), "record must be deleted on a detached context")
	assert.Equal(t, before, e.free(), "address must be released on a detached context")
}

func TestAddKeygenFailureReleasesAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(d *Deps, _ *Options) { d.Keys = brokenKeys{} })
	before := e.free()

	_, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n1", Address: "10.0.0.7"})
	assert.ErrorIs(t, err, apperr.ErrKeyGenerationFailed)
	assert.ErrorIs(t, err, errKeys)
	assert.Equal(t, before, e.free())
	assert.Zero(t, e.tool.PeerCount("wg0"))
}

func TestAddPersistFailureReleasesAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(d *Deps, _ *Options) {
		d.Peers = &flakyRegistry{Registry: e.peers, createErr: errDB}
	})
	before := e.free()

	_, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n1"})
	assert.ErrorIs(t, err, errDB)
	assert.Equal(t, before, e.free())
	assert.Zero(t, e.tool.PeerCount("wg0"), "nothing is bound before the record exists")
}

func TestConcurrentAddsGetDistinctAddresses(t *testing.T) {
	e := newEnv(t, "10.0.0.1/28", "")
	svc := e.service(nil)

	const n = 20 // 13 адресов в пуле
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  = map[string]bool{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.AddPeer(context.Background(), alice, AddRequest{Name: "n"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			assert.False(t, got[p.Address], "address %s handed out twice", p.Address)
			got[p.Address] = true
		}()
	}
	wg.Wait()

	assert.Len(t, got, 13)
	require.Len(t, errs, n-13)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperr.ErrPoolExhausted)
	}
	assert.Equal(t, 13, e.tool.PeerCount("wg0"))
	assert.Empty(t, e.free())
}

func TestRemoveUnbindFailureChangesNothing(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)
	assigned := e.assigned()

	e.tool.Fail(wgsync.VerbApply, errDevice)
	err = svc.RemovePeer(ctx, alice, p.ID)
	assert.ErrorIs(t, err, apperr.ErrInterfaceToolFailed)

	got, err := e.peers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Address, got.Address)
	assert.Equal(t, assigned, e.assigned())
	assert.Equal(t, p.Address, e.boundTo(p.PublicKey))
}

func TestRemoveDeleteFailureRestoresBinding(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	flaky := &flakyRegistry{Registry: e.peers}
	svc := e.service(func(d *Deps, _ *Options) { d.Peers = flaky })
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	flaky.deleteErr = errDB
	err = svc.RemovePeer(ctx, alice, p.ID)
	assert.ErrorIs(t, err, errDB)

	assert.Len(t, e.all(), 1)
	assert.Equal(t, []string{p.Address}, e.assigned())
	assert.Equal(t, p.Address, e.boundTo(p.PublicKey))
}

func TestRemoveReleaseFailureStillSucceeds(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	fp := &flakyPool{Pool: e.pool}
	svc := e.service(func(d *Deps, _ *Options) { d.Pool = fp })
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	fp.releaseErr = errDB
	require.NoError(t, svc.RemovePeer(ctx, alice, p.ID))

	assert.Empty(t, e.all())
	assert.Zero(t, e.tool.PeerCount("wg0"))
	assert.Equal(t, []string{p.Address}, e.assigned(), "left for reconcile")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.m.ReleaseFailures))
}

func TestRemoveMissingPeer(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)

	err := svc.RemovePeer(context.Background(), alice, "nope")
	assert.ErrorIs(t, err, apperr.ErrPeerNotFound)
	assert.Equal(t, 0, e.tool.Saves("wg0"))
}

func TestUpdateToAddressHeldByAnotherPeer(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p1, err := svc.AddPeer(ctx, alice, AddRequest{Name: "p1", Address: "10.0.0.2"})
	require.NoError(t, err)
	p2, err := svc.AddPeer(ctx, bob, AddRequest{Name: "p2", Address: "10.0.0.3"})
	require.NoError(t, err)
	saves := e.tool.Saves("wg0")

	_, err = svc.UpdatePeer(ctx, alice, p1.ID, UpdateRequest{Address: strp("10.0.0.3")})
	assert.ErrorIs(t, err, apperr.ErrAddressUnavailable)

	got, err := e.peers.Get(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.Address)
	assert.Equal(t, "10.0.0.2", e.boundTo(p1.PublicKey))
	assert.Equal(t, "10.0.0.3", e.boundTo(p2.PublicKey))
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, e.assigned())
	assert.Equal(t, saves, e.tool.Saves("wg0"), "interface untouched")
}

func TestUpdateMovesAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	got, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Name: strp("laptop"), Address: strp("10.0.0.10")})
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Name)
	assert.Equal(t, "10.0.0.10", got.Address)
	assert.Equal(t, p.PublicKey, got.PublicKey)

	assert.Equal(t, "10.0.0.10", e.boundTo(p.PublicKey))
	assert.Equal(t, 1, e.tool.PeerCount("wg0"))
	assert.Equal(t, []string{"10.0.0.10"}, e.assigned())

	stored, err := e.peers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", stored.Address)
	assert.Equal(t, "laptop", stored.Name)
	assert.Contains(t, e.audit.Actions(), "Updated peer laptop")
}

func TestUpdateSameAddressSkipsPool(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)
	saves := e.tool.Saves("wg0")

	got, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Name: strp("n2"), Address: strp(p.Address + "/32")})
	require.NoError(t, err)
	assert.Equal(t, "n2", got.Name)
	assert.Equal(t, p.Address, got.Address)
	assert.Equal(t, []string{p.Address}, e.assigned())
	assert.Equal(t, saves, e.tool.Saves("wg0"))
}

func TestUpdateRotateKeys(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	got, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{RotateKeys: true})
	require.NoError(t, err)
	assert.NotEqual(t, p.PublicKey, got.PublicKey)
	assert.NotEqual(t, p.PrivateKey, got.PrivateKey)
	assert.Equal(t, p.Address, got.Address)

	assert.Equal(t, 1, e.tool.PeerCount("wg0"))
	assert.Equal(t, p.Address, e.boundTo(got.PublicKey))
	assert.Empty(t, e.boundTo(p.PublicKey))
}

func TestUpdateRebindFailureReleasesNewAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	e.tool.Fail(wgsync.VerbApply, errDevice)
	_, err = svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.10"), RotateKeys: true})
	assert.ErrorIs(t, err, apperr.ErrInterfaceToolFailed)
	e.tool.Fail(wgsync.VerbApply, nil)

	assert.Equal(t, []string{p.Address}, e.assigned())
	assert.Equal(t, p.Address, e.boundTo(p.PublicKey))
	stored, err := e.peers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PublicKey, stored.PublicKey)
	assert.Equal(t, p.Address, stored.Address)
}

func TestUpdatePersistFailureRebindsBack(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	flaky := &flakyRegistry{Registry: e.peers}
	svc := e.service(func(d *Deps, _ *Options) { d.Peers = flaky })
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	flaky.updateErr = errDB
	_, err = svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.10"), RotateKeys: true})
	assert.ErrorIs(t, err, errDB)

	assert.Equal(t, 1, e.tool.PeerCount("wg0"))
	assert.Equal(t, p.Address, e.boundTo(p.PublicKey), "old binding restored")
	assert.Equal(t, []string{p.Address}, e.assigned(), "new address released")
}

func TestUpdateOfVanishedPeerUnbindsNewKey(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	flaky := &flakyRegistry{Registry: e.peers}
	svc := e.service(func(d *Deps, _ *Options) { d.Peers = flaky })
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	flaky.vanish = true
	_, err = svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.10"), RotateKeys: true})
	assert.ErrorIs(t, err, apperr.ErrPeerNotFound)

	assert.Zero(t, e.tool.PeerCount("wg0"), "neither key stays on the interface")
	assert.NotContains(t, e.assigned(), "10.0.0.10")
}

func TestRemoveAndUpdateOfOnePeerSerialize(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	release := e.tool.Hang(wgsync.VerbApply)
	removed := make(chan error, 1)
	go func() { removed <- svc.RemovePeer(ctx, alice, p.ID) }()
	time.Sleep(50 * time.Millisecond)

	updated := make(chan error, 1)
	go func() {
		_, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.10")})
		updated <- err
	}()
	time.Sleep(50 * time.Millisecond)
	release()

	require.NoError(t, <-removed)
	assert.ErrorIs(t, <-updated, apperr.ErrPeerNotFound)

	assert.Empty(t, e.all())
	assert.Zero(t, e.tool.PeerCount("wg0"))
	assert.Empty(t, e.assigned())
	assert.Zero(t, svc.locks.held())
}

func TestConcurrentUpdatesOfOnePeerKeepOneAddress(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	release := e.tool.Hang(wgsync.VerbApply)
	errs := make(chan error, 2)
	go func() {
		_, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.10")})
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	go func() {
		_, err := svc.UpdatePeer(ctx, alice, p.ID, UpdateRequest{Address: strp("10.0.0.20")})
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	release()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	got, err := e.peers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20", got.Address)
	assert.Equal(t, got.Address, e.boundTo(got.PublicKey))
	assert.Equal(t, []string{got.Address}, e.assigned())
	assert.Zero(t, svc.locks.held())
}

func TestOwnershipScoping(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	pa, err := svc.AddPeer(ctx, alice, AddRequest{Name: "a1"})
	require.NoError(t, err)
	pb, err := svc.AddPeer(ctx, root, AddRequest{Name: "b1", OwnerID: bob.OwnerID})
	require.NoError(t, err)
	assert.Equal(t, bob.OwnerID, pb.OwnerID)

	_, err = svc.GetPeer(ctx, bob, pa.ID)
	assert.ErrorIs(t, err, apperr.ErrPeerNotFound)
	assert.ErrorIs(t, svc.RemovePeer(ctx, bob, pa.ID), apperr.ErrPeerNotFound)
	_, err = svc.UpdatePeer(ctx, bob, pa.ID, UpdateRequest{Name: strp("mine")})
	assert.ErrorIs(t, err, apperr.ErrPeerNotFound)
	_, _, err = svc.PeerConfig(ctx, bob, pa.ID)
	assert.ErrorIs(t, err, apperr.ErrPeerNotFound)

	mine, err := svc.ListPeers(ctx, bob, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, pb.ID, mine[0].ID)

	everyone, err := svc.ListPeers(ctx, root, "")
	require.NoError(t, err)
	assert.Len(t, everyone, 2)

	alices, err := svc.ListPeers(ctx, root, alice.OwnerID)
	require.NoError(t, err)
	require.Len(t, alices, 1)
	assert.Equal(t, pa.ID, alices[0].ID)

	got, err := svc.GetPeer(ctx, root, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Name)
	require.NoError(t, svc.RemovePeer(ctx, root, pa.ID))
}

func TestInterfaceNotConfigured(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(d *Deps, _ *Options) { d.Interface = nil })
	ctx := context.Background()
	before := e.free()

	_, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	assert.ErrorIs(t, err, apperr.ErrInterfaceNotConfigured)
	assert.ErrorIs(t, svc.RemovePeer(ctx, alice, "x"), apperr.ErrInterfaceNotConfigured)
	_, err = svc.UpdatePeer(ctx, alice, "x", UpdateRequest{})
	assert.ErrorIs(t, err, apperr.ErrInterfaceNotConfigured)
	_, err = svc.Reconcile(ctx, false)
	assert.ErrorIs(t, err, apperr.ErrInterfaceNotConfigured)

	assert.Equal(t, before, e.free())
}

func TestPeerConfig(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(func(_ *Deps, o *Options) {
		o.Client.Endpoint = "vpn.example.org:51820"
	})
	ctx := context.Background()

	p, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	got, out, err := svc.PeerConfig(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Contains(t, string(out), "PrivateKey = "+p.PrivateKey+"\n")
	assert.Contains(t, string(out), "Address = 10.0.0.2/24\n")
	assert.Contains(t, string(out), "PublicKey = "+e.iface.PublicKey+"\n")
	assert.Contains(t, string(out), "Endpoint = vpn.example.org:51820\n")
	assert.Contains(t, string(out), "PersistentKeepalive = 30\n")
}

func TestPoolStats(t *testing.T) {
	e := newEnv(t, "10.0.0.1/24", "")
	svc := e.service(nil)
	ctx := context.Background()

	_, err := svc.AddPeer(ctx, alice, AddRequest{Name: "n1"})
	require.NoError(t, err)

	st, err := svc.PoolStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 253, st.Total)
	assert.EqualValues(t, 1, st.Assigned)
	assert.EqualValues(t, 252, st.Free)
	assert.Equal(t, 252.0, testutil.ToFloat64(e.m.PoolAddresses.WithLabelValues("free")))
}
