package api

import (
	"net/http"
	"strings"

	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func (s *Server) handlePolicyByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/sys/policies/")
	if name == "" {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "policy name required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, err := s.authenticate(r); err != nil {
			writeError(w, err)
			return
		}
		p, err := s.core.Policies.Get(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := s.requireSudo(r); err != nil {
			writeError(w, err)
			return
		}
		if err := s.core.Policies.Delete(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
	}
}
