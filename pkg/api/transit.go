package api

import (
	"net/http"
	"strings"

	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func (s *Server) handleTransitKeys(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/transit/keys/")
	if rest == "" {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "key name required"))
		return
	}

	if name, ok := strings.CutSuffix(rest, "/rotate"); ok {
		if r.Method != http.MethodPost {
			writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
			return
		}
		s.dispatch(w, r, engine.OpWrite, transitMount+"rotate/"+name, nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.dispatch(w, r, engine.OpWrite, transitMount+"keys/"+rest, nil)
	case http.MethodGet:
		s.dispatch(w, r, engine.OpRead, transitMount+"keys/"+rest, nil)
	default:
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
	}
}

func (s *Server) handleTransitEncrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/transit/encrypt/")
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, engine.OpWrite, transitMount+"encrypt/"+name, data)
}

func (s *Server) handleTransitDecrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/transit/decrypt/")
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, engine.OpWrite, transitMount+"decrypt/"+name, data)
}
