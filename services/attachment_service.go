package services

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	fig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/stellamgmt/stella/config"
	"github.com/stellamgmt/stella/models"
)

const (
	// MaxAttachmentSize bounds a single uploaded file.
	MaxAttachmentSize = 25 * 1024 * 1024
	thumbnailWidth    = 320
)

var supportedAttachmentTypes = map[string]bool{
	".png":  true,
	".jpeg": true,
	".jpg":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".mp3":  true,
	".wav":  true,
	".mp4":  true,
	".mov":  true,
	".zip":  true,
}

// s3Putter is the slice of the S3 client the attachment service needs.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// attachmentService stores message attachments in S3 and hands back public
// URLs. Image attachments also get a downscaled thumbnail next to the original.
type attachmentService struct {
	client s3Putter
	bucket string
	region string
}

func NewAttachmentService(conf *config.Config) (AttachmentUploader, error) {
	if conf.AwsBucket == "" {
		return nil, fmt.Errorf("S3 bucket name is not configured")
	}
	cfg, err := fig.LoadDefaultConfig(context.Background(),
		fig.WithRegion(conf.AwsRegion),
		fig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AwsAccessKeyID, conf.AwsSecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %v", err)
	}
	return &attachmentService{
		client: s3.NewFromConfig(cfg),
		bucket: conf.AwsBucket,
		region: conf.AwsRegion,
	}, nil
}

// Upload stores one attachment under a key derived from the conversation, the
// current time, and the original filename, so concurrent sends to the same
// conversation cannot collide.
func (a *attachmentService) Upload(ctx context.Context, conversationID string, file *multipart.FileHeader) (*models.Attachment, error) {
	if file.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("file %s exceeds the %d byte limit", file.Filename, MaxAttachmentSize)
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !supportedAttachmentTypes[ext] {
		return nil, fmt.Errorf("unsupported file type %s", ext)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := filepath.Base(file.Filename)
	key := fmt.Sprintf("conversations/%s/%d_%s", conversationID, time.Now().UnixNano(), name)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        src,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s to S3: %v", name, err)
	}

	att := &models.Attachment{
		Name:        name,
		URL:         a.publicURL(key),
		ContentType: contentType,
		Size:        file.Size,
	}

	if strings.HasPrefix(contentType, "image/") {
		thumbURL, err := a.uploadThumbnail(ctx, file, key)
		if err != nil {
			// A missing thumbnail degrades the preview, not the message.
			return att, nil
		}
		att.ThumbnailURL = thumbURL
	}
	return att, nil
}

func (a *attachmentService) uploadThumbnail(ctx context.Context, file *multipart.FileHeader, originalKey string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumb := resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}

	key := originalKey + "_thumb.jpg"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", err
	}
	return a.publicURL(key), nil
}

func (a *attachmentService) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
}
