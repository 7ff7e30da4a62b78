package delivery

import (
	"bytes"
	"context"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const report_objectstore_put = "objectstore.put"

type ObjectStoreConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

// ObjectStore uploads archives to an S3 compatible bucket under
// {prefix}/{tenant}/{file name}.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
	tel    telemetry.API
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig, tel telemetry.API) (ObjectStore, error) {
	if cfg.Endpoint == "" {
		return ObjectStore{}, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return ObjectStore{}, fmt.Errorf("object store credentials are required")
	}
	if cfg.Bucket == "" {
		return ObjectStore{}, fmt.Errorf("object store bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return ObjectStore{}, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return ObjectStore{}, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return ObjectStore{}, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		tel:    telemetry.NewScopedAPI("delivery", tel),
	}, nil
}

func (s ObjectStore) key(d Delivery) string {
	return path.Join(s.prefix, d.Tenant, d.FileName)
}

func (s ObjectStore) Deliver(ctx context.Context, d Delivery) error {
	key := s.key(d)
	info, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(d.Archive),
		int64(len(d.Archive)),
		minio.PutObjectOptions{ContentType: "application/zip"},
	)
	if err != nil {
		s.tel.ReportBroken(report_objectstore_put, err, s.bucket, key)
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.tel.ReportDebug("objectstore.put: uploaded", s.bucket, key, info.Size)
	return nil
}
