package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/service"
)

// entityRoutes registers create, update and delete for a cached entity type.
func (s *Server) entityRoutes(r chi.Router, t domain.EntityType) {
	r.Post("/", func(w http.ResponseWriter, r *http.Request) { s.createEntity(w, r, t) })
	r.Patch("/{id}", func(w http.ResponseWriter, r *http.Request) { s.updateEntity(w, r, t) })
	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) { s.removeEntity(w, r, t) })
}

func (s *Server) createEntity(w http.ResponseWriter, r *http.Request, t domain.EntityType) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := snapshotFromJSON(t, raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, pending, err := sess.Create(r.Context(), snap)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.settle(w, r, pending, http.StatusCreated, cachedEntity(sess.Get, t, created.EntityID(), created))
}

func snapshotFromJSON(t domain.EntityType, raw json.RawMessage) (domain.Snapshot, error) {
	var v any
	switch t {
	case domain.EntityItem:
		v = &domain.Item{}
	case domain.EntityCategory:
		v = &domain.Category{}
	case domain.EntityLocation:
		v = &domain.Location{}
	case domain.EntityTag:
		v = &domain.Tag{}
	case domain.EntityTemplate:
		v = &domain.ItemTemplate{}
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, decodeError(err)
	}
	return domain.SnapshotOf(v)
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roots, err := sess.CategoryTree()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roots)
}

func (s *Server) handleLocationTree(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roots, err := sess.LocationTree()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roots)
}

func (s *Server) handleLocationOptions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.LocationOptions())
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Tags())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Templates())
}

// handleUseTemplate creates an item from a template. The body is optional
// and overrides the template's defaults.
func (s *Server) handleUseTemplate(w http.ResponseWriter, r *http.Request) {
	var overrides service.TemplateUse
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &overrides); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	item, err := s.service.CreateFromTemplate(r.Context(), pathID(r), overrides)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshSession(r, domain.EntityItem, domain.EntityTemplate)
	writeJSON(w, http.StatusCreated, item)
}

// refreshSession reloads the caller's cached tables after a write made
// outside the session.
func (s *Server) refreshSession(r *http.Request, types ...domain.EntityType) {
	sess, err := s.session(r)
	if err != nil {
		return
	}
	for _, t := range types {
		if err := sess.Refresh(r.Context(), t); err != nil {
			s.logger.Warn("failed to refresh session", "type", t, "error", err)
		}
	}
}
