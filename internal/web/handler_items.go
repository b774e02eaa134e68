package web

import (
	"net/http"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
	"github.com/vbonduro/homeinv/internal/validate"
)

func itemFilter(r *http.Request) repository.ItemFilter {
	q := r.URL.Query()
	return repository.ItemFilter{
		Search:          q.Get("search"),
		CategoryID:      q.Get("category"),
		LocationID:      q.Get("location"),
		TagID:           q.Get("tag"),
		Status:          domain.ItemStatus(q.Get("status")),
		Favorites:       queryBool(r, "favorites"),
		Essential:       queryBool(r, "essential"),
		IncludeArchived: queryBool(r, "archived"),
	}
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems(r.Context(), itemFilter(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.LowStock(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetItem(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in service.NewItem
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.service.CreateItem(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshSession(r, domain.EntityItem)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	s.updateEntity(w, r, domain.EntityItem)
}

type quantityRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := pathID(r)
	item, pending, err := sess.AdjustQuantity(r.Context(), id, req.Delta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.settle(w, r, pending, http.StatusOK, cachedItem(sess.Item, id, item))
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := pathID(r)
	item, pending, err := sess.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.settle(w, r, pending, http.StatusOK, cachedItem(sess.Item, id, item))
}

// cachedItem reports the session's current copy of an item, falling back to
// the optimistic value if the item has since left the cache.
func cachedItem(lookup func(string) (domain.Item, bool), id string, fallback domain.Item) func() any {
	return func() any {
		if item, ok := lookup(id); ok {
			return item
		}
		return fallback
	}
}

func (s *Server) handleArchiveItem(w http.ResponseWriter, r *http.Request) {
	s.removeEntity(w, r, domain.EntityItem)
}

func (s *Server) handleRestoreItem(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := sess.Context(r.Context())
	item, err := s.service.SetArchived(ctx, pathID(r), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Refresh(ctx, domain.EntityItem); err != nil {
		s.logger.Warn("failed to refresh items after restore", "item_id", item.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSetItemLocations(w http.ResponseWriter, r *http.Request) {
	var locs []domain.ItemLocation
	if err := decodeJSON(r, &locs); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.service.SetItemLocations(r.Context(), pathID(r), locs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type tagsRequest struct {
	TagIDs []string `json:"tag_ids"`
}

func (s *Server) handleSetItemTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.service.SetItemTags(r.Context(), pathID(r), req.TagIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExportItems(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="items.csv"`)
	n, err := s.service.ExportItemsCSV(r.Context(), w, itemFilter(r))
	if err != nil {
		// Headers may already be on the wire; the error can only be logged.
		s.logger.Error("export items failed", "rows", n, "error", err)
		return
	}
	s.logger.Debug("exported items", "rows", n)
}

// updateEntity patches one cached entity through the caller's session.
func (s *Server) updateEntity(w http.ResponseWriter, r *http.Request, t domain.EntityType) {
	var values remote.Record
	if err := decodeJSON(r, &values); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(values) == 0 {
		s.writeError(w, r, validate.FieldError("body", "no fields to update"))
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := pathID(r)
	next, pending, err := sess.Update(r.Context(), t, id, values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.settle(w, r, pending, http.StatusOK, cachedEntity(sess.Get, t, id, next))
}

func (s *Server) removeEntity(w http.ResponseWriter, r *http.Request, t domain.EntityType) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pending, err := sess.Remove(r.Context(), t, pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.settle(w, r, pending, http.StatusNoContent, func() any { return nil })
}

func cachedEntity(lookup func(domain.EntityType, string) (domain.Snapshot, bool), t domain.EntityType, id string, fallback domain.Snapshot) func() any {
	return func() any {
		if snap, ok := lookup(t, id); ok {
			return domain.Entity(snap)
		}
		return domain.Entity(fallback)
	}
}
