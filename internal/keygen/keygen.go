// Package keygen produces WireGuard key pairs for new peers and for the
// server interface.
package keygen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgprov/internal/apperr"
	"wgprov/internal/execx"
)

type Pair struct {
	PrivateKey string
	PublicKey  string
}

type Generator interface {
	Generate(ctx context.Context) (Pair, error)
}

// New выбирает реализацию по конфигу: "exec" (wg genkey/pubkey) или "native".
func New(mode, wgBinary string, timeout time.Duration) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "exec":
		return NewExec(wgBinary, timeout), nil
	case "native":
		return Native{}, nil
	default:
		return nil, fmt.Errorf("unknown keygen mode %q", mode)
	}
}

// Exec shells out to `wg genkey` and `wg pubkey`.
type Exec struct {
	Runner execx.Runner
	Binary string
}

func NewExec(binary string, timeout time.Duration) *Exec {
	if binary == "" {
		binary = "wg"
	}
	return &Exec{
		Runner: execx.Exec{Timeout: timeout, FailKind: apperr.KindKeyGenerationFailed},
		Binary: binary,
	}
}

func (g *Exec) Generate(ctx context.Context) (Pair, error) {
	priv, err := g.Runner.Run(ctx, "", g.Binary, "genkey")
	if err != nil {
		return Pair{}, apperr.Wrap(apperr.KindKeyGenerationFailed, err, "generate private key")
	}
	if priv == "" {
		return Pair{}, apperr.New(apperr.KindKeyGenerationFailed, "%s genkey returned an empty key", g.Binary)
	}

	pub, err := g.Runner.Run(ctx, priv+"\n", g.Binary, "pubkey")
	if err != nil {
		return Pair{}, apperr.Wrap(apperr.KindKeyGenerationFailed, err, "derive public key")
	}
	if pub == "" {
		return Pair{}, apperr.New(apperr.KindKeyGenerationFailed, "%s pubkey returned an empty key", g.Binary)
	}
	return Pair{PrivateKey: priv, PublicKey: pub}, nil
}

// Native generates Curve25519 keys in-process.
type Native struct{}

func (Native) Generate(ctx context.Context) (Pair, error) {
	if err := ctx.Err(); err != nil {
		return Pair{}, apperr.Wrap(apperr.KindKeyGenerationFailed, err, "generate key pair")
	}
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Pair{}, apperr.Wrap(apperr.KindKeyGenerationFailed, err, "generate key pair")
	}
	return Pair{PrivateKey: k.String(), PublicKey: k.PublicKey().String()}, nil
}
