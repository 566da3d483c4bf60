package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"wgprov/internal/models"
	"wgprov/internal/pool"
	"wgprov/internal/provision"
)

// Provisioner — контракт оркестратора, который нужен HTTP-слою.
type Provisioner interface {
	AddPeer(ctx context.Context, c provision.Caller, req provision.AddRequest) (*models.Peer, error)
	RemovePeer(ctx context.Context, c provision.Caller, id string) error
	UpdatePeer(ctx context.Context, c provision.Caller, id string, req provision.UpdateRequest) (*models.Peer, error)
	GetPeer(ctx context.Context, c provision.Caller, id string) (*models.Peer, error)
	ListPeers(ctx context.Context, c provision.Caller, owner string) ([]models.Peer, error)
	PeerConfig(ctx context.Context, c provision.Caller, id string) (*models.Peer, []byte, error)
	PoolStats(ctx context.Context) (pool.Stats, error)
	Reconcile(ctx context.Context, prune bool) (provision.ReconcileReport, error)
	Export(ctx context.Context) ([]byte, string, error)
}

const Prefix = "/api/v1"

func RegisterRoutes(r *mux.Router, sharedSecret string, svc Provisioner) {
	sub := r.PathPrefix(Prefix).Subrouter()
	sub.Use(sharedSecretAuth(sharedSecret), identity)

	h := &Handler{svc: svc}
	sub.HandleFunc("/peers", h.ListPeers).Methods(http.MethodGet)
	sub.HandleFunc("/peers", h.AddPeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{id}", h.GetPeer).Methods(http.MethodGet)
	sub.HandleFunc("/peers/{id}", h.UpdatePeer).Methods(http.MethodPatch)
	sub.HandleFunc("/peers/{id}", h.RemovePeer).Methods(http.MethodDelete)
	sub.HandleFunc("/peers/{id}/config", h.PeerConfig).Methods(http.MethodGet)
	sub.HandleFunc("/pool", adminOnly(h.PoolStats)).Methods(http.MethodGet)
	sub.HandleFunc("/reconcile", adminOnly(h.Reconcile)).Methods(http.MethodPost)
	sub.HandleFunc("/export", adminOnly(h.Export)).Methods(http.MethodGet)
}
