package api

import (
	"net/http"

	"github.com/cuemby/vaultwarren/pkg/token"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func (s *Server) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	parent, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Policies    []string          `json:"policies"`
		DisplayName string            `json:"display_name"`
		TTLSeconds  int64             `json:"ttl_seconds"`
		Renewable   bool              `json:"renewable"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	tok, secret, err := s.core.Tokens.Create(r.Context(), token.CreateParams{
		Policies:    body.Policies,
		DisplayName: body.DisplayName,
		TTL:         secondsToDuration(body.TTLSeconds),
		Renewable:   body.Renewable,
		Parent:      parent,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": secret, "accessor": tok.Accessor})
}

func (s *Server) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.RevokeToken(r.Context(), body.Token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenLookupSelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	secret, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tok, err := s.core.Tokens.Lookup(r.Context(), secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
