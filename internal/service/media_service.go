package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ObjectStore stores uploaded media bytes under a key.
type ObjectStore interface {
	UploadToR2(ctx context.Context, key string, file []byte, filetype string) error
}

type MediaService interface {
	Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error)
}

type mediaService struct {
	ma    repository.MediaAssetRepository
	store ObjectStore
}

func NewMediaService(ma repository.MediaAssetRepository, store ObjectStore) MediaService {
	return &mediaService{
		ma:    ma,
		store: store,
	}
}

var allowedTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpg": {}, "png": {}, "gif": {}, "webp": {},
}

func (s *mediaService) Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error) {
	fileContent, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return nil, fmt.Errorf("%w: unsupported file type", ErrInvalid)
	}
	if _, ok := allowedTypes[fileType.Extension]; !ok {
		return nil, fmt.Errorf("%w: file type %s is not allowed", ErrInvalid, fileType.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := fmt.Sprintf("%d/%s.%s", userID, id, fileType.Extension)

	if err := s.store.UploadToR2(ctx, key, fileBytes, fileType.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: key,
		FileType: fileType.MIME.Value,
		FileSize: int64(len(fileBytes)),
	}
	asset.ID, err = s.ma.Create(ctx, nil, asset)
	if err != nil {
		return nil, err
	}

	slog.Info("media uploaded", "user_id", userID, "asset_id", asset.ID, "type", asset.FileType)
	return asset, nil
}
