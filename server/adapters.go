package server

import (
	"io"

	"wgprov/config"
	"wgprov/internal/db"
	"wgprov/internal/jobs"
	"wgprov/internal/provision"
	"wgprov/internal/render/wgconf"
	"wgprov/internal/wgsync"
)

// Переходники из конфигурации в параметры компонентов.

func dbOptions(c *config.Config) db.Options {
	return db.Options{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

func bootstrapConfig(c *config.Config) provision.BootstrapConfig {
	return provision.BootstrapConfig{
		ServerName:    c.WireGuard.ServerName,
		InterfaceName: c.WireGuard.Interface,
		Address:       c.WireGuard.Address,
		ListenPort:    c.WireGuard.ListenPort,
		PoolSubnet:    c.WireGuard.PoolSubnet,
		ConfigDir:     c.WireGuard.ConfigDir,
	}
}

func clientOptions(c *config.Config) wgconf.Client {
	return wgconf.Client{
		Endpoint:   c.WireGuard.Endpoint,
		AllowedIPs: c.WireGuard.AllowedIPs,
		DNS:        c.WireGuard.DNS,
	}
}

func jobsConfig(c *config.Config) jobs.Config {
	cfg := jobs.Config{
		ReconcileSpec: c.Provisioning.ReconcileSchedule,
		Prune:         c.Provisioning.ReconcilePrune,
	}
	if c.Metrics.Enabled {
		cfg.StatsSpec = c.Metrics.PoolStatsSpec
	}
	return cfg
}

// newTool выбирает способ управления интерфейсом. Второе значение закрывается при остановке.
func newTool(c *config.Config) (wgsync.Tool, io.Closer, error) {
	execTool := wgsync.NewExecTool(c.WireGuard.WGBinary, c.WireGuard.WGQuickBinary, c.WireGuard.ToolTimeout)
	if c.WireGuard.Tool != "netlink" {
		return execTool, nil, nil
	}
	nl, err := wgsync.NewNetlinkTool(execTool)
	if err != nil {
		return nil, nil, err
	}
	return nl, nl, nil
}
