// Package wgconf renders wg-quick configuration files.
package wgconf

import (
	"fmt"
	"net/netip"
	"strings"

	"wgprov/internal/models"
)

const DefaultKeepalive = 30

// Client описывает параметры клиентского конфига.
type Client struct {
	Endpoint   string   // host:port сервера
	AllowedIPs []string // по умолчанию сеть интерфейса
	DNS        []string
	Keepalive  int
}

// ClientConfig renders the config a peer imports on its device.
func ClientConfig(p *models.Peer, srv *models.InterfaceConfig, opt Client) ([]byte, error) {
	if p == nil || srv == nil {
		return nil, fmt.Errorf("wgconf: peer and interface are required")
	}
	prefix, err := netip.ParsePrefix(srv.Address)
	if err != nil {
		return nil, fmt.Errorf("wgconf: interface address %q: %w", srv.Address, err)
	}
	allowed := opt.AllowedIPs
	if len(allowed) == 0 {
		allowed = []string{prefix.Masked().String()}
	}
	ka := opt.Keepalive
	if ka <= 0 {
		ka = DefaultKeepalive
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", p.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/%d\n", p.Address, prefix.Bits())
	if len(opt.DNS) > 0 {
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(opt.DNS, ", "))
	}
	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", srv.PublicKey)
	if opt.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", opt.Endpoint)
	}
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(allowed, ", "))
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", ka)
	return []byte(b.String()), nil
}

// ServerConfig renders the interface file wg-quick brings up. Peers are
// written with a /32 allowed address each.
func ServerConfig(srv *models.InterfaceConfig, peers []models.Peer) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "Address = %s\n", srv.Address)
	if srv.ListenPort > 0 {
		fmt.Fprintf(&b, "ListenPort = %d\n", srv.ListenPort)
	}
	fmt.Fprintf(&b, "PrivateKey = %s\n", srv.PrivateKey)
	for _, p := range peers {
		fmt.Fprintf(&b, "\n[Peer]\n")
		fmt.Fprintf(&b, "# %s\n", p.Name)
		fmt.Fprintf(&b, "PublicKey = %s\n", p.PublicKey)
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", p.Address)
	}
	return []byte(b.String())
}
