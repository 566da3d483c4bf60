package wgsync

import (
	"context"
	"errors"
	"net"
	"os"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgprov/internal/apperr"
)

// NetlinkTool configures the device through wgctrl and persists it with
// `wg-quick save`, which wgctrl cannot do.
type NetlinkTool struct {
	client *wgctrl.Client
	saver  *ExecTool
	// занят, пока вызов wgctrl не вернулся, даже если ctx уже истёк
	busy chan struct{}
}

func NewNetlinkTool(saver *ExecTool) (*NetlinkTool, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInterfaceToolFailed, err, "open wgctrl client")
	}
	return &NetlinkTool{client: c, saver: saver, busy: make(chan struct{}, 1)}, nil
}

func (t *NetlinkTool) Close() error { return t.client.Close() }

func (t *NetlinkTool) Apply(ctx context.Context, iface string, changes []PeerChange) error {
	if len(changes) == 0 {
		return nil
	}
	peers := make([]wgtypes.PeerConfig, 0, len(changes))
	for _, c := range changes {
		key, err := wgtypes.ParseKey(c.PublicKey)
		if err != nil {
			return apperr.Wrap(apperr.KindInterfaceToolFailed, err, "parse public key %q", c.PublicKey)
		}
		if c.Remove {
			peers = append(peers, wgtypes.PeerConfig{PublicKey: key, Remove: true})
			continue
		}
		ip := net.ParseIP(c.Address).To4()
		if ip == nil {
			return apperr.New(apperr.KindInterfaceToolFailed, "invalid peer address %q", c.Address)
		}
		peers = append(peers, wgtypes.PeerConfig{
			PublicKey:         key,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{{IP: ip, Mask: net.CIDRMask(32, 32)}},
		})
	}

	return t.do(ctx, iface, func() error {
		return t.client.ConfigureDevice(iface, wgtypes.Config{Peers: peers})
	})
}

func (t *NetlinkTool) Save(ctx context.Context, iface string) error {
	return t.saver.Save(ctx, iface)
}

func (t *NetlinkTool) List(ctx context.Context, iface string) ([]Binding, error) {
	var dev *wgtypes.Device
	err := t.do(ctx, iface, func() error {
		var err error
		dev, err = t.client.Device(iface)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := make([]Binding, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		b := Binding{PublicKey: p.PublicKey.String()}
		for _, n := range p.AllowedIPs {
			b.Addresses = append(b.Addresses, n.IP.String())
		}
		res = append(res, b)
	}
	return res, nil
}

// do выполняет вызов netlink с учётом дедлайна ctx: сам wgctrl контекст не принимает.
// Вызов, брошенный по таймауту, продолжает держать busy, поэтому следующий
// (например, компенсирующий) не обгонит его запоздалый результат.
func (t *NetlinkTool) do(ctx context.Context, iface string, fn func() error) error {
	select {
	case t.busy <- struct{}{}:
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindInterfaceToolTimeout, ctx.Err(), "configure %s: previous call still running", iface)
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-t.busy }()
		done <- fn()
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, os.ErrNotExist):
			return apperr.Wrap(apperr.KindInterfaceToolFailed, err, "device %s not found", iface)
		default:
			return apperr.Wrap(apperr.KindInterfaceToolFailed, err, "configure %s", iface)
		}
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindInterfaceToolTimeout, ctx.Err(), "configure %s", iface)
	}
}
