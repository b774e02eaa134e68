package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/vision"
)

// keyResolver is implemented by file stores that can map a public URL back
// to its key.
type keyResolver interface {
	KeyFromURL(u string) (string, bool)
}

// UploadPhoto stores an image for the item and points the item's image_url
// at it. The previous image is removed once the item is updated.
func (s *InventoryService) UploadPhoto(ctx context.Context, itemID string, imageData []byte, mimeType string) (*domain.Item, error) {
	if s.files == nil {
		return nil, ErrFilesDisabled
	}
	item, err := s.repos.Items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("upload photo started", "item_id", itemID, "mime_type", mimeType, "bytes", len(imageData))

	key := photoKey(item.Name, mimeType)
	if err := s.files.Upload(ctx, key, mimeType, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}
	s.logger.Debug("photo saved", "item_id", itemID, "storage_key", key)

	updated, err := s.UpdateItem(ctx, itemID, remote.Record{"image_url": s.files.PublicURL(key)})
	if err != nil {
		if rmErr := s.files.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			s.logger.Error("failed to remove orphaned photo", "storage_key", key, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to attach photo: %w", err)
	}

	if item.ImageURL != nil {
		s.removeByURL(ctx, *item.ImageURL)
	}
	return updated, nil
}

func (s *InventoryService) removeByURL(ctx context.Context, u string) {
	resolver, ok := s.files.(keyResolver)
	if !ok {
		return
	}
	key, ok := resolver.KeyFromURL(u)
	if !ok {
		return
	}
	if err := s.files.Remove(ctx, key); err != nil {
		s.logger.Warn("failed to remove replaced photo", "storage_key", key, "error", err)
	}
}

// photoKey builds a unique object key from the item name.
func photoKey(name, mimeType string) string {
	base := slug.Make(name)
	if base == "" {
		base = "item"
	}
	return fmt.Sprintf("items/%s-%s%s", base, uuid.NewString()[:8], filestore.ExtensionFor(mimeType))
}

// Capture asks the vision backend which items are in the photo. Nothing is
// stored; the drafts are for the user to review.
func (s *InventoryService) Capture(ctx context.Context, imageData []byte, mimeType string) ([]vision.Draft, error) {
	if s.visionAPI == nil {
		return nil, ErrVisionDisabled
	}
	s.logger.Info("vision analysis started", "mime_type", mimeType, "bytes", len(imageData))
	result, err := s.visionAPI.Analyze(ctx, bytes.NewReader(imageData), mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}
	s.logger.Info("vision analysis complete", "drafts", len(result.Drafts))
	return result.Drafts, nil
}
