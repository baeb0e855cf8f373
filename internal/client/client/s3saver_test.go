package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket emulates conditional writes of a single-node object store.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	etagSeq int
	puts    []*s3.PutObjectInput
	headErr error
	putErr  error
}

type fakeObject struct {
	body []byte
	meta map[string]string
	etag string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string]fakeObject)}
}

func (b *fakeBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.headErr != nil {
		return nil, b.headErr
	}
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(obj.etag), Metadata: obj.meta}, nil
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts = append(b.puts, in)
	if b.putErr != nil {
		return nil, b.putErr
	}

	key := aws.ToString(in.Key)
	cur, exists := b.objects[key]
	if in.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "object exists"}
	}
	if in.IfMatch != nil && (!exists || cur.etag != aws.ToString(in.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag mismatch"}
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.etagSeq++
	etag := `"etag-` + strconv.Itoa(b.etagSeq) + `"`
	b.objects[key] = fakeObject{body: body, meta: in.Metadata, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func newTestSaver(b *fakeBucket) *S3DraftSaver {
	return &S3DraftSaver{api: b, bucket: "drafts-bucket", prefix: "clinic-1"}
}

func testPayload(t *testing.T, version int64) *models.DraftPayload {
	t.Helper()
	p, err := models.NewDraftPayload(map[string]string{"assessment": "stable"}, version)
	require.NoError(t, err)
	return p
}

func TestS3DraftSaver_CreateThenUpdate(t *testing.T) {
	b := newFakeBucket()
	s := newTestSaver(b)
	ctx := context.Background()

	v, err := s.Save(ctx, "note-1", testPayload(t, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	require.Len(t, b.puts, 1)
	assert.Equal(t, "*", aws.ToString(b.puts[0].IfNoneMatch))
	assert.Equal(t, "clinic-1/drafts/note-1.json", aws.ToString(b.puts[0].Key))
	assert.Equal(t, "drafts-bucket", aws.ToString(b.puts[0].Bucket))

	v, err = s.Save(ctx, "note-1", testPayload(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.NotEmpty(t, aws.ToString(b.puts[1].IfMatch))

	var stored models.DraftPayload
	require.NoError(t, json.Unmarshal(b.objects["clinic-1/drafts/note-1.json"].body, &stored))
	assert.Equal(t, int64(2), stored.Version)
	assert.JSONEq(t, `{"assessment":"stable"}`, string(stored.Fields))
}

func TestS3DraftSaver_StaleVersionConflicts(t *testing.T) {
	b := newFakeBucket()
	s := newTestSaver(b)
	ctx := context.Background()

	_, err := s.Save(ctx, "note-1", testPayload(t, 0))
	require.NoError(t, err)

	_, err = s.Save(ctx, "note-1", testPayload(t, 0))
	require.ErrorIs(t, err, common.ErrVersionConflict)
	assert.Len(t, b.puts, 1, "no write after a failed version check")
}

func TestS3DraftSaver_ConcurrentWriterLosesPrecondition(t *testing.T) {
	b := newFakeBucket()
	s := newTestSaver(b)
	ctx := context.Background()

	// HEAD sees no object but another writer creates it before our PUT
	b.putErr = &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}

	_, err := s.Save(ctx, "note-1", testPayload(t, 0))
	require.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestS3DraftSaver_ErrorMapping(t *testing.T) {
	serverErr := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
			Err:      errors.New("slow down"),
		},
	}

	tests := []struct {
		name    string
		headErr error
		want    error
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrUnauthorized},
		{"server error", serverErr, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBucket()
			b.headErr = tt.headErr
			_, err := newTestSaver(b).Save(context.Background(), "note-1", testPayload(t, 0))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestS3DraftSaver_ObjectWithoutVersion(t *testing.T) {
	b := newFakeBucket()
	b.objects["clinic-1/drafts/note-1.json"] = fakeObject{etag: `"x"`, meta: map[string]string{}}

	_, err := newTestSaver(b).Save(context.Background(), "note-1", testPayload(t, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid version")
}

func TestNewS3DraftSaver_UsesSeams(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNew })

	var gotOpts s3.Options
	fake := newFakeBucket()
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		for _, fn := range optFns {
			fn(&gotOpts)
		}
		return fake
	}

	s, err := NewS3DraftSaver(context.Background(), S3Config{
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		Bucket:    "drafts",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Same(t, fake, s.api)
	assert.Equal(t, "http://localhost:9000", aws.ToString(gotOpts.BaseEndpoint))
	assert.True(t, gotOpts.UsePathStyle)

	_, err = NewS3DraftSaver(context.Background(), S3Config{})
	require.Error(t, err)
}

func TestOfflineSaver(t *testing.T) {
	_, err := OfflineSaver(context.Background(), "note-1", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}
