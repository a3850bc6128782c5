package file

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"

	"github.com/aliskhannn/latex2image/internal/model"
)

// Storage publishes artifacts to an S3-compatible bucket using MinIO.
type Storage struct {
	client     *minio.Client
	fs         afero.Fs
	bucketName string
	prefix     string
	publicURL  string
}

// MinioOptions configures the bucket backend.
type MinioOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string // skips the bucket location lookup when set
	UseSSL     bool
	Prefix     string // object key prefix, e.g. "output"
	PublicURL  string // base URL the bucket is reachable at
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
// Local artifact files are read from fs.
func NewStorage(ctx context.Context, fs afero.Fs, opts MinioOptions) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, opts.BucketName, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		fs:         fs,
		bucketName: opts.BucketName,
		prefix:     opts.Prefix,
		publicURL:  publicBaseURL(opts),
	}, nil
}

// publicBaseURL is the configured public URL, or the bucket's path-style
// URL on the endpoint, without a trailing slash.
func publicBaseURL(opts MinioOptions) string {
	if opts.PublicURL != "" {
		return strings.TrimRight(opts.PublicURL, "/")
	}

	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.BucketName)
}

// URL returns the public URL of an object.
func (s *Storage) URL(objectName string) string {
	return s.publicURL + "/" + objectName
}

// ObjectName returns the bucket key of a job's artifact.
func (s *Storage) ObjectName(id string, f model.Format) string {
	return path.Join(s.prefix, ArtifactName(id, f))
}

// Publish uploads src to the bucket and returns its public URL.
func (s *Storage) Publish(ctx context.Context, id string, f model.Format, src string) (string, error) {
	file, err := s.fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat artifact: %w", err)
	}

	objectName := s.ObjectName(id, f)

	_, err = s.client.PutObject(ctx, s.bucketName, objectName, file, info.Size(), minio.PutObjectOptions{
		ContentType: ContentType(f),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return s.URL(objectName), nil
}
