package api

import (
	"net/http"
	"strings"

	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func (s *Server) handleSecretData(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
	if path == "" {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "secret path required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.dispatch(w, r, engine.OpRead, kvMount+path, nil)
	case http.MethodPost:
		var data map[string]any
		if err := decodeJSON(r, &data); err != nil {
			writeError(w, err)
			return
		}
		s.dispatch(w, r, engine.OpWrite, kvMount+path, data)
	case http.MethodDelete:
		s.dispatch(w, r, engine.OpDelete, kvMount+path, nil)
	default:
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
	}
}

func (s *Server) handleSecretList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	prefix := strings.TrimPrefix(r.URL.Path, "/v1/secret/list/")
	s.dispatch(w, r, engine.OpList, kvMount+prefix, nil)
}
