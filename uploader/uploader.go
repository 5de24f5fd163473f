// Package uploader turns a batch of raw image payloads into persisted post
// images, tolerating per-item failure.
package uploader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blogcms/models"
	"blogcms/storage"
)

// Item is one raw image payload from a multipart request.
type Item struct {
	Data     []byte
	Name     string // caller-supplied name, may be empty
	Filename string // original filename, may be empty
	MIMEType string
}

// BatchResult reports per-batch success counts alongside the images that
// made it. Images preserve the relative order of their input items.
type BatchResult struct {
	Images      []models.PostImage
	TotalCount  int
	FailedCount int
}

func (r BatchResult) AllFailed() bool {
	return len(r.Images) == 0
}

func (r BatchResult) Message() string {
	switch {
	case r.FailedCount == 0:
		return "Images uploaded successfully"
	case r.AllFailed():
		return "All images failed to upload"
	default:
		return fmt.Sprintf("Some images failed to upload (%d of %d)", r.FailedCount, r.TotalCount)
	}
}

// Orchestrator drives concurrent compress+upload of image batches against
// the asset store.
type Orchestrator struct {
	store       storage.Store
	log         *zap.Logger
	concurrency int
}

func New(store storage.Store, log *zap.Logger, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{store: store, log: log, concurrency: concurrency}
}

// UploadBatch uploads every item concurrently. A failed item is dropped and
// logged; it never cancels its siblings. The join waits for all items to
// settle before returning.
func (o *Orchestrator) UploadBatch(ctx context.Context, items []Item) BatchResult {
	uploaded := make([]*models.PostImage, len(items))

	g := &errgroup.Group{}
	g.SetLimit(o.concurrency)
	for i, item := range items {
		g.Go(func() error {
			name := EffectiveName(item, i)
			result, err := o.store.UploadCompressed(ctx, item.Data, name, item.MIMEType)
			if err != nil {
				o.log.Warn("image upload failed, skipping item",
					zap.Int("index", i), zap.String("name", name), zap.Error(err))
				return nil
			}
			uploaded[i] = &models.PostImage{
				ID:       primitive.NewObjectID(),
				Name:     name,
				URL:      result.URL,
				PublicID: result.PublicID,
				Width:    result.Width,
				Height:   result.Height,
			}
			return nil
		})
	}
	_ = g.Wait()

	images := make([]models.PostImage, 0, len(items))
	for _, img := range uploaded {
		if img != nil {
			images = append(images, *img)
		}
	}

	return BatchResult{
		Images:      images,
		TotalCount:  len(items),
		FailedCount: len(items) - len(images),
	}
}

// EffectiveName picks the image name for an item: the trimmed supplied name
// when non-empty, else the original filename with its extension stripped,
// else image_<1-based index>.
func EffectiveName(item Item, index int) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return name
	}
	if item.Filename != "" {
		base := strings.TrimSuffix(item.Filename, filepath.Ext(item.Filename))
		if base != "" {
			return base
		}
	}
	return fmt.Sprintf("image_%d", index+1)
}
