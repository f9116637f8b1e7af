package api

import (
	"encoding/base64"
	"net/http"

	"github.com/cuemby/vaultwarren/pkg/core"
	"github.com/cuemby/vaultwarren/pkg/mount"
	"github.com/cuemby/vaultwarren/pkg/policy"
	"github.com/cuemby/vaultwarren/pkg/seal"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	var cfg seal.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.core.Seal.Init(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnseal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	var body struct {
		Share string `json:"share"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	progress, err := s.core.Seal.SubmitUnsealShare(r.Context(), body.Share)
	if err != nil {
		writeError(w, err)
		return
	}
	if progress == nil {
		// Threshold reached; vault is now unsealed. Restore mount routing.
		if err := s.core.LoadMounts(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"sealed": false})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if err := s.requireSudo(r); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Seal.Seal(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSealStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.core.Seal.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.core.Seal.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	switch {
	case !status.Initialized:
		writeJSON(w, http.StatusNotImplemented, status)
	case status.Sealed:
		writeJSON(w, http.StatusServiceUnavailable, status)
	default:
		writeJSON(w, http.StatusOK, status)
	}
}

// requireSudo authenticates the request's token and requires one of its
// policies to grant sudo on the path "sys/". It is used by routes that
// are not themselves expressed as an engine.Request.
func (s *Server) requireSudo(r *http.Request) error {
	tok, err := s.core.Tokens.Lookup(r.Context(), r.Header.Get(tokenHeader))
	if err != nil {
		return err
	}
	return s.core.Policies.Check(r.Context(), tok.Policies, "sys/", "sudo")
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if err := s.requireSudo(r); err != nil {
		writeError(w, err)
		return
	}
	snapshot, err := s.core.Barrier.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	encoded := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}
	writeJSON(w, http.StatusOK, encoded)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
		return
	}
	if err := s.requireSudo(r); err != nil {
		writeError(w, err)
		return
	}
	var encoded map[string]string
	if err := decodeJSON(r, &encoded); err != nil {
		writeError(w, err)
		return
	}
	snapshot := make(map[string][]byte, len(encoded))
	for k, v := range encoded {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			writeError(w, vaulterr.Wrap(vaulterr.InvalidRequest, err, "restore: value not base64"))
			return
		}
		snapshot[k] = raw
	}
	if err := s.core.Barrier.Restore(r.Context(), snapshot); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.core.Mounts.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		if err := s.requireSudo(r); err != nil {
			writeError(w, err)
			return
		}
		var body mount.Entry
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := s.core.Mounts.Mount(r.Context(), body.Path, body.Type); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
	}
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, err := s.authenticate(r); err != nil {
			writeError(w, err)
			return
		}
		names, err := s.core.Policies.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, names)
	case http.MethodPost:
		if err := s.requireSudo(r); err != nil {
			writeError(w, err)
			return
		}
		var p policy.Policy
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, err)
			return
		}
		if err := s.core.Policies.Put(r.Context(), p); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, vaulterr.New(vaulterr.InvalidRequest, "method not allowed"))
	}
}
