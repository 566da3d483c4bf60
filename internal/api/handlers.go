package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"wgprov/internal/apperr"
	"wgprov/internal/models"
	"wgprov/internal/provision"
)

const maxBody = 64 << 10

type Handler struct {
	svc Provisioner
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, "bad request body")
	}
	return nil
}

func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := h.svc.ListPeers(r.Context(), callerFrom(r), r.URL.Query().Get("owner"))
	if err != nil {
		models.WriteError(w, err)
		return
	}
	if peers == nil {
		peers = []models.Peer{}
	}
	models.WriteJSON(w, http.StatusOK, peers)
}

func (h *Handler) AddPeer(w http.ResponseWriter, r *http.Request) {
	var req provision.AddRequest
	if err := decode(r, &req); err != nil {
		models.WriteError(w, err)
		return
	}
	p, err := h.svc.AddPeer(r.Context(), callerFrom(r), req)
	if err != nil {
		models.WriteError(w, err)
		return
	}
	w.Header().Set("Location", Prefix+"/peers/"+p.ID)
	models.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetPeer(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPeer(r.Context(), callerFrom(r), mux.Vars(r)["id"])
	if err != nil {
		models.WriteError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdatePeer(w http.ResponseWriter, r *http.Request) {
	var req provision.UpdateRequest
	if err := decode(r, &req); err != nil {
		models.WriteError(w, err)
		return
	}
	p, err := h.svc.UpdatePeer(r.Context(), callerFrom(r), mux.Vars(r)["id"], req)
	if err != nil {
		models.WriteError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) RemovePeer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemovePeer(r.Context(), callerFrom(r), mux.Vars(r)["id"]); err != nil {
		models.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (h *Handler) PeerConfig(w http.ResponseWriter, r *http.Request) {
	p, conf, err := h.svc.PeerConfig(r.Context(), callerFrom(r), mux.Vars(r)["id"])
	if err != nil {
		models.WriteError(w, err)
		return
	}
	name := unsafeName.ReplaceAllString(p.Name, "_")
	if name == "" {
		name = "wg"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".conf"))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(conf)
}

func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PoolStats(r.Context())
	if err != nil {
		models.WriteError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	prune, _ := strconv.ParseBool(r.URL.Query().Get("prune"))
	rep, err := h.svc.Reconcile(r.Context(), prune)
	if err != nil {
		models.WriteError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, rep)
}

// Export отдаёт архив со всеми конфигами; sha256 — в заголовке.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	archive, sum, err := h.svc.Export(r.Context())
	if err != nil {
		models.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="wgprov-export.tar.gz"`)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-SHA256", sum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
