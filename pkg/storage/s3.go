package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const metaOriginalName = "original-name"

// s3API is the subset of the S3 client used by S3Storage
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage implements Storage using Amazon S3 or S3-compatible services.
// Keys look like <analysis>/<file>/<name>.
type S3Storage struct {
	client s3API
	bucket string
}

// NewS3Storage creates an S3 storage using the default AWS credential chain
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.S3Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return newS3Storage(s3.NewFromConfig(awsCfg, opts...), cfg.S3Bucket), nil
}

func newS3Storage(client s3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// Upload stores a file in S3 and returns its metadata
func (s *S3Storage) Upload(ctx context.Context, analysisID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	fileID := uuid.New()
	key := path.Join(analysisID.String(), fileID.String(), sanitizeFilename(filename))

	body, size, err := sizedBody(r)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{metaOriginalName: filename},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &FileInfo{
		ID:          fileID,
		AnalysisID:  analysisID,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		Path:        key,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Download retrieves a file from S3 by its ID
func (s *S3Storage) Download(ctx context.Context, analysisID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, analysisID, fileID)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(info.Path),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, info, nil
}

// Delete removes a file from S3 by its ID
func (s *S3Storage) Delete(ctx context.Context, analysisID uuid.UUID, fileID uuid.UUID) error {
	info, err := s.GetInfo(ctx, analysisID, fileID)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(info.Path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns all files stored for an analysis
func (s *S3Storage) List(ctx context.Context, analysisID uuid.UUID) ([]*FileInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(analysisID.String() + "/"),
	})

	files := []*FileInfo{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			if info, ok := fileInfoFromObject(analysisID, obj); ok {
				files = append(files, info)
			}
		}
	}
	return files, nil
}

// GetInfo returns metadata for a file without downloading
func (s *S3Storage) GetInfo(ctx context.Context, analysisID uuid.UUID, fileID uuid.UUID) (*FileInfo, error) {
	prefix := path.Join(analysisID.String(), fileID.String()) + "/"
	result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up S3 object: %w", err)
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
	}

	info, ok := fileInfoFromObject(analysisID, result.Contents[0])
	if !ok {
		return nil, fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(info.Path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read S3 object metadata: %w", err)
	}
	info.ContentType = aws.ToString(head.ContentType)
	if name, ok := head.Metadata[metaOriginalName]; ok && name != "" {
		info.Name = name
	}

	return info, nil
}

// fileInfoFromObject parses <analysis>/<file>/<name> keys.
func fileInfoFromObject(analysisID uuid.UUID, obj types.Object) (*FileInfo, bool) {
	key := aws.ToString(obj.Key)
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return nil, false
	}
	fileID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, false
	}
	return &FileInfo{
		ID:         fileID,
		AnalysisID: analysisID,
		Name:       parts[2],
		Size:       aws.ToInt64(obj.Size),
		Path:       key,
		CreatedAt:  aws.ToTime(obj.LastModified),
	}, true
}

// sizedBody returns a seekable body with a known length, as PutObject needs one.
func sizedBody(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, size, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return strings.NewReader(string(data)), int64(len(data)), nil
}
