package api

import (
	"net/http"

	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// authenticate resolves the request's token, returning vaulterr.Denied
// for a missing or invalid one. Lease and token self-service routes only
// require a valid token, not a specific policy capability — the lease and
// token IDs themselves are the authorization boundary.
func (s *Server) authenticate(r *http.Request) (string, error) {
	secret := r.Header.Get(tokenHeader)
	if secret == "" {
		return "", vaulterr.New(vaulterr.Denied, "missing " + tokenHeader + " header")
	}
	if _, err := s.core.Tokens.Lookup(r.Context(), secret); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Server) handleLeaseLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if _, err := s.authenticate(r); err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ID string `json:"lease_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.core.Leases.Get(r.Context(), body.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLeaseRenew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if _, err := s.authenticate(r); err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ID string `json:"lease_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.core.Leases.Renew(r.Context(), body.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLeaseRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if _, err := s.authenticate(r); err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ID string `json:"lease_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Leases.Revoke(r.Context(), body.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
