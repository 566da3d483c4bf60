package provision

import (
	"context"
	"encoding/json"

	"wgprov/internal/apperr"
	"wgprov/internal/render/wgconf"
	"wgprov/internal/tarball"
)

type exportEntry struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	File    string `json:"file"`
}

// Export packs the server config and every client config into a tar.gz.
// The archive holds private keys and is meant for admins only.
func (s *Service) Export(ctx context.Context) ([]byte, string, error) {
	iface, err := s.Interface()
	if err != nil {
		return nil, "", err
	}
	// снимок без гонок с add/remove
	s.gate.RLock()
	defer s.gate.RUnlock()

	peers, err := s.peers.List(ctx)
	if err != nil {
		return nil, "", err
	}

	files := make([]tarball.File, 0, len(peers)+2)
	files = append(files, tarball.File{Name: iface.InterfaceName + ".conf", Data: wgconf.ServerConfig(iface, peers)})
	manifest := make([]exportEntry, 0, len(peers))
	for i := range peers {
		p := &peers[i]
		conf, err := wgconf.ClientConfig(p, iface, s.client)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.KindInternal, err, "render config for %s", p.Name)
		}
		name := "peers/" + p.ID + ".conf"
		files = append(files, tarball.File{Name: name, Data: conf})
		manifest = append(manifest, exportEntry{ID: p.ID, OwnerID: p.OwnerID, Name: p.Name, Address: p.Address, File: name})
	}
	idx, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, err, "export manifest")
	}
	files = append(files, tarball.File{Name: "peers.json", Data: idx, Mode: 0o644})

	out, sum, err := tarball.Build(files)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, err, "export archive")
	}
	s.log.WithField("peers", len(peers)).Info("exported configs")
	return out, sum, nil
}
