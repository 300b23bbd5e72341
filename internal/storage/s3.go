// Package storage keeps encrypted objects in S3 or any S3 compatible server
// such as MinIO: backup snapshots and document attachments.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"lawdesk/internal/config"
)

// MaxAttachmentSize bounds a single uploaded attachment.
const MaxAttachmentSize = 25 << 20

var ErrNotFound = errors.New("object not found")

var attachmentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

type S3Service struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	sealer     *Sealer
}

type UploadResult struct {
	Key        string    `json:"key"`
	Bucket     string    `json:"bucket"`
	FileHash   string    `json:"fileHash"` // SHA-256 hash of the plaintext
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type DownloadResult struct {
	Data     []byte
	FileHash string
	FileSize int64
	MimeType string
	Metadata map[string]string
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// NewS3Service creates a new S3 service instance with MinIO support
func NewS3Service(ctx context.Context, cfg config.StorageConfig) (*S3Service, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET environment variable is required")
	}
	sealer, err := NewSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // MinIO requires path-style addressing
		}
	})

	return &S3Service{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		sealer:     sealer,
	}, nil
}

// PutObject encrypts data and uploads it under key
func (s *S3Service) PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (*UploadResult, error) {
	fileHash := Hash(data)
	encryptedData, err := s.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt object: %w", err)
	}

	meta := map[string]string{
		"original-hash": fileHash,
		"encrypted":     "true",
		"content-type":  contentType,
	}
	for k, v := range metadata {
		meta[k] = v
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(encryptedData),
		ContentType:          aws.String("application/octet-stream"),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAes256, // Additional S3-level encryption
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		Key:        key,
		Bucket:     s.bucket,
		FileHash:   fileHash,
		FileSize:   int64(len(data)),
		MimeType:   contentType,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// GetObject downloads, decrypts and verifies an object
func (s *S3Service) GetObject(ctx context.Context, key string) (*DownloadResult, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object metadata: %w", err)
	}

	buf := manager.NewWriteAtBuffer([]byte{})
	_, err = s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	data, err := s.sealer.Open(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt object: %w", err)
	}
	if expected := head.Metadata["original-hash"]; expected != "" {
		if err := ValidateIntegrity(data, expected); err != nil {
			return nil, err
		}
	}

	return &DownloadResult{
		Data:     data,
		FileHash: Hash(data),
		FileSize: int64(len(data)),
		MimeType: head.Metadata["content-type"],
		Metadata: head.Metadata,
	}, nil
}

// DeleteObject deletes an object
func (s *S3Service) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// List returns the objects under prefix, newest key last.
func (s *S3Service) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := []ObjectInfo{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// AttachmentType returns the content type of an allowed attachment file name.
func AttachmentType(filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	mimeType, ok := attachmentTypes[ext]
	if !ok {
		return "", fmt.Errorf("file type %q is not allowed", ext)
	}
	return mimeType, nil
}

// AttachmentKey is the object key of a new attachment in namespace.
func AttachmentKey(namespace, filename string) (string, string, error) {
	mimeType, err := AttachmentType(filename)
	if err != nil {
		return "", "", err
	}
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("attachments/%s/%s%s", namespace, uuid.NewString(), ext), mimeType, nil
}

// InNamespace reports whether key is an attachment stored under namespace.
func InNamespace(key, namespace string) bool {
	return strings.HasPrefix(key, "attachments/"+namespace+"/") && !strings.Contains(key, "..")
}

// UploadAttachment stores an uploaded file of a document under namespace
func (s *S3Service) UploadAttachment(ctx context.Context, namespace string, file multipart.File, header *multipart.FileHeader) (*UploadResult, error) {
	if header.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxAttachmentSize)
	}
	key, mimeType, err := AttachmentKey(namespace, header.Filename)
	if err != nil {
		return nil, err
	}

	fileData, err := io.ReadAll(io.LimitReader(file, MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(fileData) > MaxAttachmentSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxAttachmentSize)
	}

	return s.PutObject(ctx, key, fileData, mimeType, map[string]string{
		"original-filename": header.Filename,
		"namespace":         namespace,
	})
}
