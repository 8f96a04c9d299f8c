package store

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO is an S3 compatible store.
type MinIO struct {
	cli *minio.Client
}

// S3Options configures an S3 connection.
type S3Options struct {
	Endpoint string
	Region   string
	Insecure bool
	Creds    *credentials.Credentials
}

// NewMinIO connects to an S3 compatible endpoint.
func NewMinIO(opts S3Options) (*MinIO, error) {
	creds := opts.Creds
	if creds == nil {
		creds = DefaultCredentials()
	}
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create S3 client for %q: %w", opts.Endpoint, err)
	}
	return &MinIO{cli: cli}, nil
}

// SessionCredentials returns static credentials for a temporary session.
func SessionCredentials(accessKeyID, secretAccessKey, sessionToken string) *credentials.Credentials {
	return credentials.NewStaticV4(accessKeyID, secretAccessKey, sessionToken)
}

// DefaultCredentials resolves credentials from the AWS environment variables,
// the shared credentials file, then the instance role.
func DefaultCredentials() *credentials.Credentials {
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{},
	})
}

// Upload puts the file at filePath to bucket/key.
func (m *MinIO) Upload(ctx context.Context, bucket, key, filePath string) error {
	_, err := m.cli.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("cannot upload %s: %w", URI(bucket, key), err)
	}
	return nil
}

// Download gets bucket/key into filePath.
func (m *MinIO) Download(ctx context.Context, bucket, key, filePath string) error {
	err := m.cli.FGetObject(ctx, bucket, key, filePath, minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrNotFound, URI(bucket, key))
		}
		return fmt.Errorf("cannot download %s: %w", URI(bucket, key), err)
	}
	return nil
}

func contentType(key string) string {
	switch ext := path.Ext(key); ext {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".json":
		return "application/json"
	case ".nc":
		return "application/x-netcdf"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
