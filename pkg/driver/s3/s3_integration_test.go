//go:build integration
// +build integration

package s3

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS3Driver_Integration round-trips a staging tree through a real
// S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./pkg/driver/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Driver_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	opts := Options{
		Bucket:          "stowage-test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		KeyPrefix:       "it/",
		MaxRetries:      2,
	}

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(opts.Bucket)})
	require.NoError(t, err)

	defer func() {
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(opts.Bucket)})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(opts.Bucket), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(opts.Bucket)})
	}()

	sp := space.NewLocal("", t.TempDir())
	d := New(sp, opts, client, driver.Settings{})
	require.NoError(t, d.Validate())

	staged := filepath.Join(sp.StagingPath(), "aip")
	require.NoError(t, os.MkdirAll(filepath.Join(staged, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "data", "file.txt"), []byte("payload"), 0644))

	require.NoError(t, d.MoveFromStorageService(ctx, "aip", "aips/0001"))

	tree, err := d.Browse(ctx, "aips")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, tree.Directories)
	assert.Equal(t, "1", tree.Properties["0001"].ObjectCount.String())

	out := space.NewLocal(t.TempDir(), t.TempDir())
	require.NoError(t, d.MoveToStorageService(ctx, "aips/0001", "restored", out))

	data, err := os.ReadFile(filepath.Join(out.StagingPath(), "restored", "data", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
