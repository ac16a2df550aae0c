package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/publishflow/configs"
	"github.com/maheshrc27/publishflow/internal/models"
)

// PresignTTL is how long a resolved media URL stays fetchable.
const PresignTTL = 4 * time.Hour

type R2Service struct {
	config  cfg.Config
	client  *s3.Client
	presign *s3.PresignClient
}

func NewR2Service(ctx context.Context, c cfg.Config) (*R2Service, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.R2.AccessKey, c.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	endpoint := c.R2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2.AccountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Service{
		config:  c,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, filetype string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(filetype),
	}

	_, err := r.client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

// Resolve turns object keys into presigned GET URLs. Locations that are
// already URLs are passed through unchanged.
func (r *R2Service) Resolve(ctx context.Context, refs []models.MediaRef) ([]models.MediaRef, error) {
	resolved := make([]models.MediaRef, len(refs))
	for i, ref := range refs {
		resolved[i] = ref
		if isURL(ref.Location) {
			continue
		}

		req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.config.R2.BucketName),
			Key:    aws.String(ref.Location),
		}, s3.WithPresignExpires(PresignTTL))
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("presigning %s: %w", ref.Location, err)
		}
		resolved[i].Location = req.URL
	}
	return resolved, nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
