package web

import (
	"context"
	"net/http"

	"github.com/vbonduro/homeinv/internal/client"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/undo"
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.service.History(r.Context(), domain.EntityType(q.Get("type")), q.Get("id"), queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUndoChange(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.UndoChange(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshSession(r, h.EntityType)
	writeJSON(w, http.StatusOK, h)
}

type ledgerResponse struct {
	Applied bool         `json:"applied"`
	Action  *undo.Action `json:"action,omitempty"`
	State   undo.State   `json:"state"`
}

func (s *Server) handleLedgerState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleLedgerUndo(w http.ResponseWriter, r *http.Request) {
	s.stepLedger(w, r, (*client.Session).Undo)
}

func (s *Server) handleLedgerRedo(w http.ResponseWriter, r *http.Request) {
	s.stepLedger(w, r, (*client.Session).Redo)
}

func (s *Server) stepLedger(w http.ResponseWriter, r *http.Request, step func(*client.Session, context.Context) (undo.Action, bool, error)) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action, ok, err := step(sess, r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ledgerResponse{Applied: ok, State: sess.State()}
	if ok {
		resp.Action = &action
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess.DismissToast()
	w.WriteHeader(http.StatusNoContent)
}
