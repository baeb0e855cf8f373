package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
)

const versionMetaKey = "version"

// objectAPI is the subset of the S3 client the saver uses.
type objectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config locates the bucket drafts are saved to.
type S3Config struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Prefix    string `json:"prefix"`
}

// S3DraftSaver stores each draft as one JSON object and uses the object's
// "version" metadata as the optimistic lock. A payload is accepted only if
// it was based on the version currently stored; the write itself is
// conditional on the ETag observed, so a concurrent writer loses with
// common.ErrVersionConflict.
type S3DraftSaver struct {
	api    objectAPI
	bucket string
	prefix string
}

// NewS3DraftSaver builds a saver from static credentials. A non-empty
// Endpoint selects an S3-compatible server (path-style addressing).
func NewS3DraftSaver(ctx context.Context, c S3Config) (*S3DraftSaver, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3DraftSaver{api: api, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (s *S3DraftSaver) objectKey(id string) string {
	return path.Join(s.prefix, "drafts", id+".json")
}

// Save implements models.RemoteSaveFunc.
func (s *S3DraftSaver) Save(ctx context.Context, id string, p *models.DraftPayload) (int64, error) {
	key := s.objectKey(id)

	current, etag, err := s.head(ctx, key)
	if err != nil {
		return 0, err
	}
	if p.Version != current {
		return 0, fmt.Errorf("%w: draft %s is at version %d, edit based on %d",
			common.ErrVersionConflict, id, current, p.Version)
	}

	next := current + 1
	body, err := json.Marshal(models.DraftPayload{Fields: p.Fields, Version: next})
	if err != nil {
		return 0, err
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{versionMetaKey: strconv.FormatInt(next, 10)},
	}
	if etag != "" {
		in.IfMatch = aws.String(etag)
	} else {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return 0, mapS3Error(err)
	}
	return next, nil
}

// head returns the stored version and ETag of key; a missing object is
// version 0.
func (s *S3DraftSaver) head(ctx context.Context, key string) (int64, string, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return 0, "", nil
		}
		return 0, "", mapS3Error(err)
	}

	v, err := strconv.ParseInt(out.Metadata[versionMetaKey], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: object %s has no valid version: %w", key, err)
	}
	return v, aws.ToString(out.ETag), nil
}

func mapS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", common.ErrVersionConflict, apiErr.ErrorMessage())
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.ErrorCode())
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("s3: %w", err)
}

// OfflineSaver is the remote save used when no server is configured. It
// always fails, so backups stay local.
func OfflineSaver(context.Context, string, *models.DraftPayload) (int64, error) {
	return 0, ErrUnavailable
}
