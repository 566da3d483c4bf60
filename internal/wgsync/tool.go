package wgsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wgprov/internal/apperr"
	"wgprov/internal/execx"
)

// PeerChange — одна правка пира на интерфейсе.
type PeerChange struct {
	PublicKey string
	Address   string // без маски; на интерфейсе становится /32
	Remove    bool
}

// Binding is a peer as seen on the live interface.
type Binding struct {
	PublicKey string
	Addresses []string
}

// Tool is the capability the synchronizer needs from the host.
//
// Apply must carry all changes in one invocation, so a key swap is observed
// by the interface as a single update.
type Tool interface {
	Apply(ctx context.Context, iface string, changes []PeerChange) error
	Save(ctx context.Context, iface string) error
	List(ctx context.Context, iface string) ([]Binding, error)
}

// ExecTool drives `wg` and `wg-quick`.
type ExecTool struct {
	Runner  execx.Runner
	WG      string
	WGQuick string
}

func NewExecTool(wg, wgQuick string, timeout time.Duration) *ExecTool {
	if wg == "" {
		wg = "wg"
	}
	if wgQuick == "" {
		wgQuick = "wg-quick"
	}
	return &ExecTool{
		Runner:  execx.Exec{Timeout: timeout, FailKind: apperr.KindInterfaceToolFailed},
		WG:      wg,
		WGQuick: wgQuick,
	}
}

func (t *ExecTool) Apply(ctx context.Context, iface string, changes []PeerChange) error {
	if len(changes) == 0 {
		return nil
	}
	args := []string{"set", iface}
	for _, c := range changes {
		if c.Remove {
			args = append(args, "peer", c.PublicKey, "remove")
			continue
		}
		args = append(args, "peer", c.PublicKey, "allowed-ips", c.Address+"/32")
	}
	_, err := t.Runner.Run(ctx, "", t.WG, args...)
	return err
}

func (t *ExecTool) Save(ctx context.Context, iface string) error {
	_, err := t.Runner.Run(ctx, "", t.WGQuick, "save", iface)
	return err
}

// List parses `wg show <iface> allowed-ips`:
//
//	<pubkey>\t10.0.0.2/32 10.0.0.3/32
//	<pubkey>\t(none)
func (t *ExecTool) List(ctx context.Context, iface string) ([]Binding, error) {
	out, err := t.Runner.Run(ctx, "", t.WG, "show", iface, "allowed-ips")
	if err != nil {
		return nil, err
	}
	return parseAllowedIPs(out)
}

func parseAllowedIPs(out string) ([]Binding, error) {
	var res []Binding
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		b := Binding{PublicKey: fields[0]}
		for _, f := range fields[1:] {
			if f == "(none)" {
				continue
			}
			ip, _, ok := strings.Cut(f, "/")
			if !ok {
				return nil, fmt.Errorf("unexpected allowed-ips entry %q", f)
			}
			b.Addresses = append(b.Addresses, ip)
		}
		res = append(res, b)
	}
	return res, nil
}
