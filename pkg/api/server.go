// Package api implements the HTTP surface described in the module's
// external interface contract: a thin transport layer translating
// requests into pkg/core.Request calls and status codes from
// core.StatusCode. It holds no business logic of its own.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/vaultwarren/pkg/core"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

const (
	kvMount      = "kv/default/"
	transitMount = "transit/default/"

	tokenHeader = "X-Vault-Token"
)

// Server exposes the vault's HTTP API over a *core.Core.
type Server struct {
	core *core.Core
	mux  *http.ServeMux
}

// NewServer builds a Server with every route registered.
func NewServer(c *core.Core) *Server {
	s := &Server{core: c, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the server's http.Handler, wrapped with request metrics.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// ListenAndServe starts the HTTP server on addr with the timeouts the
// rest of this module's services use.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.WithComponent("api").Info().Str("addr", addr).Msg("vault http api listening")
	return srv.ListenAndServe()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/sys/init", s.handleInit)
	s.mux.HandleFunc("/v1/sys/unseal", s.handleUnseal)
	s.mux.HandleFunc("/v1/sys/seal", s.handleSeal)
	s.mux.HandleFunc("/v1/sys/seal-status", s.handleSealStatus)
	s.mux.HandleFunc("/v1/sys/health", s.handleHealth)
	s.mux.HandleFunc("/v1/sys/backup", s.handleBackup)
	s.mux.HandleFunc("/v1/sys/restore", s.handleRestore)
	s.mux.HandleFunc("/v1/sys/mounts", s.handleMounts)
	s.mux.HandleFunc("/v1/sys/policies", s.handlePolicies)
	s.mux.HandleFunc("/v1/sys/policies/", s.handlePolicyByName)
	s.mux.HandleFunc("/v1/sys/leases/lookup", s.handleLeaseLookup)
	s.mux.HandleFunc("/v1/sys/leases/renew", s.handleLeaseRenew)
	s.mux.HandleFunc("/v1/sys/leases/revoke", s.handleLeaseRevoke)
	s.mux.HandleFunc("/v1/auth/token/create", s.handleTokenCreate)
	s.mux.HandleFunc("/v1/auth/token/revoke", s.handleTokenRevoke)
	s.mux.HandleFunc("/v1/auth/token/lookup-self", s.handleTokenLookupSelf)
	s.mux.HandleFunc("/v1/secret/data/", s.handleSecretData)
	s.mux.HandleFunc("/v1/secret/list/", s.handleSecretList)
	s.mux.HandleFunc("/v1/transit/keys/", s.handleTransitKeys)
	s.mux.HandleFunc("/v1/transit/encrypt/", s.handleTransitEncrypt)
	s.mux.HandleFunc("/v1/transit/decrypt/", s.handleTransitDecrypt)
	s.mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewTimer()
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method, r.URL.Path)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, r.URL.Path, statusClass(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func secondsToDuration(secs int64) time.Duration {
	return time.Duration(secs) * time.Second
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, core.StatusCode(err), map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return vaulterr.New(vaulterr.InvalidRequest, "missing request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return vaulterr.Wrap(vaulterr.InvalidRequest, err, "decode request body")
	}
	return nil
}

// dispatch runs req through the core pipeline and writes a JSON response.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, op engine.Operation, path string, data map[string]any) {
	resp, err := s.core.Handle(r.Context(), core.Request{
		Token:     r.Header.Get(tokenHeader),
		Operation: op,
		Path:      path,
		Data:      data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if op == engine.OpDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
