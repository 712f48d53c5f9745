package ethrelay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compose-network/bonsai-relay/metrics"
	"github.com/compose-network/bonsai-relay/server/api"
)

type imageView struct {
	Name    string `json:"name"`
	ImageID string `json:"image_id"`
}

func (r *Relay) newAPIServer() *api.Server {
	srv := api.NewServer(r.apiCfg, r.log)
	r.registerRoutes(srv)
	return srv
}

func (r *Relay) registerRoutes(srv *api.Server) {
	srv.Router.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)
	srv.Router.HandleFunc("/ready", r.handleReady).Methods(http.MethodGet)
	if r.metricsRoute {
		srv.Router.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	v1 := srv.Router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/images", r.handleImages).Methods(http.MethodGet)
	v1.HandleFunc("/status", r.handleStatus).Methods(http.MethodGet)
}

func (r *Relay) handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Relay) handleReady(w http.ResponseWriter, req *http.Request) {
	if !r.connected.Load() {
		api.WriteError(w, req, http.StatusServiceUnavailable, "not_ready", "not subscribed to relay contract", nil)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *Relay) handleImages(w http.ResponseWriter, _ *http.Request) {
	entries := r.registry.Entries()
	out := make([]imageView, 0, len(entries))
	for _, e := range entries {
		out = append(out, imageView{Name: e.Name, ImageID: e.ImageID.Hex()})
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"images": out})
}

func (r *Relay) handleStatus(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, r.Stats())
}
