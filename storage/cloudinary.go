package storage

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blogcms/config"
)

const deleteConcurrency = 8

var whitespace = regexp.MustCompile(`\s+`)

// CloudinaryStore uploads compressed images to Cloudinary and deletes them
// by public id.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
	log    *zap.Logger
}

func NewCloudinaryStore(cfg *config.Config, log *zap.Logger) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: cfg.CloudinaryFolder, log: log}, nil
}

func (s *CloudinaryStore) UploadCompressed(ctx context.Context, data []byte, name, mimeType string) (*UploadResult, error) {
	compressed, err := Compress(data, mimeType)
	if err != nil {
		return nil, err
	}

	params := uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       uploadKey(name),
		Transformation: "q_auto:good,f_auto",
	}

	result, err := s.cld.Upload.Upload(ctx, bytes.NewReader(compressed), params)
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}

	return &UploadResult{
		URL:      result.SecureURL,
		PublicID: result.PublicID,
		Width:    result.Width,
		Height:   result.Height,
	}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	return err
}

func (s *CloudinaryStore) DeleteMany(ctx context.Context, publicIDs []string) []DeleteOutcome {
	outcomes := make([]DeleteOutcome, len(publicIDs))

	g := &errgroup.Group{}
	g.SetLimit(deleteConcurrency)
	for i, id := range publicIDs {
		g.Go(func() error {
			err := s.Delete(ctx, id)
			if err != nil {
				s.log.Warn("failed to delete remote image",
					zap.String("publicId", id), zap.Error(err))
			}
			outcomes[i] = DeleteOutcome{PublicID: id, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// uploadKey derives a collision-resistant public id from the upload time and
// the sanitized image name.
func uploadKey(name string) string {
	sanitized := whitespace.ReplaceAllString(name, "_")
	return fmt.Sprintf("blog_%d_%s", time.Now().UnixMilli(), sanitized)
}
