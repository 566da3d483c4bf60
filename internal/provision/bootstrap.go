package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wgprov/internal/apperr"
	"wgprov/internal/db"
	"wgprov/internal/keygen"
	"wgprov/internal/logs"
	"wgprov/internal/models"
	"wgprov/internal/pool"
	"wgprov/internal/render/wgconf"
	"wgprov/internal/repo"
)

// BootstrapConfig describes the interface to create on first start.
type BootstrapConfig struct {
	ServerName    string
	InterfaceName string
	Address       string // адрес сервера с маской, "10.0.0.1/24"
	ListenPort    int
	PoolSubnet    string // пусто = сеть Address
	ConfigDir     string // пусто = файл wg-quick не пишем
}

type BootstrapResult struct {
	Interface   *models.InterfaceConfig
	Created     bool
	Populated   int
	ConfigWrote string
}

// Bootstrap is the init phase: it migrates the schema, creates the interface
// singleton with a fresh server key pair if absent, writes the wg-quick file
// if it does not exist and fills the pool. Safe to run on every start.
func Bootstrap(ctx context.Context, gdb *gorm.DB, keys keygen.Generator, cfg BootstrapConfig) (*BootstrapResult, error) {
	log := logs.Logger.WithField("component", "bootstrap")

	if err := db.Migrate(ctx, gdb); err != nil {
		return nil, err
	}

	ifaces := repo.NewInterfaceStore(gdb)
	iface, created, err := ifaces.GetOrCreate(ctx, func() (*models.InterfaceConfig, error) {
		if _, err := netip.ParsePrefix(cfg.Address); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "server address %q", cfg.Address)
		}
		if strings.TrimSpace(cfg.InterfaceName) == "" {
			return nil, apperr.New(apperr.KindInvalidArgument, "interface name is required")
		}
		pair, err := keys.Generate(ctx)
		if err != nil {
			return nil, err
		}
		name := cfg.ServerName
		if name == "" {
			name = cfg.InterfaceName
		}
		return &models.InterfaceConfig{
			ServerName:    name,
			InterfaceName: cfg.InterfaceName,
			Address:       cfg.Address,
			ListenPort:    cfg.ListenPort,
			PrivateKey:    pair.PrivateKey,
			PublicKey:     pair.PublicKey,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res := &BootstrapResult{Interface: iface, Created: created}

	log = log.WithField("iface", iface.InterfaceName)
	if created {
		log.WithField("public_key", iface.PublicKey).Info("server config created")
	} else if cfg.InterfaceName != "" && cfg.InterfaceName != iface.InterfaceName {
		log.WithField("configured", cfg.InterfaceName).Warn("stored interface differs from configuration, using stored")
	}

	subnet := cfg.PoolSubnet
	if subnet == "" {
		pfx, err := netip.ParsePrefix(iface.Address)
		if err != nil {
			return nil, fmt.Errorf("server address %q: %w", iface.Address, err)
		}
		subnet = pfx.Masked().String()
	}
	if res.Populated, err = pool.New(gdb).Populate(ctx, subnet); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"subnet": subnet, "added": res.Populated}).Info("address pool ready")

	if cfg.ConfigDir != "" {
		path, err := writeServerConfig(ctx, gdb, iface, cfg.ConfigDir)
		if err != nil {
			return nil, err
		}
		if path != "" {
			res.ConfigWrote = path
			log.WithField("path", path).Info("wg-quick config written")
		}
	}
	return res, nil
}

// writeServerConfig creates <dir>/<iface>.conf unless it exists and returns
// its path, or "" when the file was already there.
func writeServerConfig(ctx context.Context, gdb *gorm.DB, iface *models.InterfaceConfig, dir string) (string, error) {
	path := filepath.Join(dir, iface.InterfaceName+".conf")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	peers, err := repo.NewPeerStore(gdb).List(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(wgconf.ServerConfig(iface, peers)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
