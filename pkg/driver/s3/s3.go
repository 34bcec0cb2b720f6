// Package s3 implements the space driver for Amazon S3 or S3-compatible
// object storage.
//
// Object keys are mapped onto a directory hierarchy with "/" as separator:
// browsing lists one level with a delimiter, common prefixes becoming
// directories. Moving to the storage service downloads the objects below a
// prefix into the staging tree; moving from it uploads a staging tree.
package s3

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/internal/ratelimiter"
	"github.com/marmos91/stowage/pkg/driver"
	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/marmos91/stowage/pkg/scan"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/marmos91/stowage/pkg/transfer"
)

// Options is the backend configuration of an S3 space.
type Options struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	MaxRetries      int    `mapstructure:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond throttles requests to the service. 0 is unlimited.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// API is the subset of the S3 client used by the driver.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client from opts.
//
// A custom endpoint (MinIO, Localstack, Ceph) switches to path-style
// addressing. Static credentials are used when both keys are set, otherwise
// the default AWS credential chain applies.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 client initialized: bucket=%s, region=%s, prefix=%s", opts.Bucket, opts.Region, opts.KeyPrefix)
	return client, nil
}

// Driver is the S3 space driver.
type Driver struct {
	space    space.Space
	opts     Options
	client   API
	countCap int
	settings driver.Settings
	scan     metrics.ScanMetrics
	transfer metrics.TransferMetrics
	requests metrics.S3Metrics
}

// New creates an S3 driver using client for every request.
func New(sp space.Space, opts Options, client API, settings driver.Settings) *Driver {
	countCap := settings.CountCap
	if countCap <= 0 {
		countCap = scan.DefaultCountCap
	}
	requests := settings.S3Metrics
	if requests == nil {
		requests = metrics.NewNoopS3Metrics()
	}
	if client != nil {
		client = &instrumentedAPI{API: client, metrics: requests}
		if opts.RequestsPerSecond > 0 {
			client = &throttledAPI{API: client, limiter: ratelimiter.New(opts.RequestsPerSecond, 0)}
		}
	}
	d := &Driver{
		space:    sp,
		opts:     opts,
		client:   client,
		countCap: countCap,
		settings: settings,
		scan:     settings.ScanMetrics,
		transfer: settings.TransferMetrics,
		requests: requests,
	}
	if d.scan == nil {
		d.scan = metrics.NewNoopScanMetrics()
	}
	if d.transfer == nil {
		d.transfer = metrics.NewNoopTransferMetrics()
	}
	return d
}

// instrumentedAPI reports the outcome and latency of every request.
type instrumentedAPI struct {
	API
	metrics metrics.S3Metrics
}

func (i *instrumentedAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := time.Now()
	out, err := i.API.ListObjectsV2(ctx, params, optFns...)
	i.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
	return out, err
}

func (i *instrumentedAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	start := time.Now()
	out, err := i.API.GetObject(ctx, params, optFns...)
	i.metrics.ObserveOperation("GetObject", time.Since(start), err)
	return out, err
}

func (i *instrumentedAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	start := time.Now()
	out, err := i.API.PutObject(ctx, params, optFns...)
	i.metrics.ObserveOperation("PutObject", time.Since(start), err)
	return out, err
}

// throttledAPI waits for the rate limiter before every request.
type throttledAPI struct {
	API
	limiter *ratelimiter.RateLimiter
}

func (t *throttledAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.API.ListObjectsV2(ctx, params, optFns...)
}

func (t *throttledAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.API.GetObject(ctx, params, optFns...)
}

func (t *throttledAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.API.PutObject(ctx, params, optFns...)
}

func (d *Driver) Kind() space.Kind   { return space.KindS3 }
func (d *Driver) Space() space.Space { return d.space }

// key maps a browse or move path to an object key (without trailing slash).
// Paths may be given relative to the space or prefixed with its path.
func (d *Driver) key(p string) string {
	p = filepath.ToSlash(p)
	if root := filepath.ToSlash(d.space.Path()); root != "" && root != "/" {
		if p == root {
			p = ""
		} else if strings.HasPrefix(p, root+"/") {
			p = p[len(root):]
		}
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	prefix := strings.Trim(d.opts.KeyPrefix, "/")
	switch {
	case prefix == "":
		return p
	case p == "":
		return prefix
	default:
		return prefix + "/" + p
	}
}

func dirPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

// Browse lists the objects and common prefixes directly below path.
func (d *Driver) Browse(ctx context.Context, p string) (*space.DirectoryTree, error) {
	start := time.Now()
	prefix := dirPrefix(d.key(p))
	logger.Info("Browsing S3 prefix s3://%s/%s", d.opts.Bucket, prefix)

	dirs := make(map[string]bool)
	sizes := make(map[string]int64)

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.opts.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", d.opts.Bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				dirs[name] = true
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			sizes[name] = aws.ToInt64(obj.Size)
		}
	}

	if prefix != dirPrefix(d.key("")) && len(dirs) == 0 && len(sizes) == 0 {
		return nil, fmt.Errorf("browse s3://%s/%s: %w", d.opts.Bucket, prefix, space.ErrNotFound)
	}

	tree := space.NewDirectoryTree()
	for name := range dirs {
		if d.visible(name) {
			tree.Entries = append(tree.Entries, name)
			tree.Directories = append(tree.Directories, name)
		}
	}
	for name, size := range sizes {
		if dirs[name] || !d.visible(name) {
			continue
		}
		tree.Entries = append(tree.Entries, name)
		tree.Properties[name] = space.SizeProperties(size)
	}
	scan.SortNames(tree.Entries)
	scan.SortNames(tree.Directories)

	if !d.settings.CountingDisabled {
		for _, name := range tree.Directories {
			count, err := d.countObjects(ctx, prefix+name+"/")
			if err != nil {
				logger.Warn("Counting objects below %s%s failed: %v", prefix, name, err)
				continue
			}
			tree.Properties[name] = space.EntryProperties{ObjectCount: &count}
		}
	}

	d.scan.RecordScan(string(space.KindS3), len(tree.Entries), time.Since(start))
	return tree, nil
}

func (d *Driver) visible(name string) bool {
	return d.settings.IncludeHidden || !strings.HasPrefix(name, ".")
}

// countObjects counts the objects below prefix, stopping at the cap.
func (d *Driver) countObjects(ctx context.Context, prefix string) (space.ObjectCount, error) {
	pageSize := int32(1000)
	if d.countCap < 1000 {
		pageSize = int32(d.countCap)
	}

	count := 0
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.opts.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(pageSize),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return space.ObjectCount{}, err
		}
		for _, obj := range page.Contents {
			if strings.HasSuffix(aws.ToString(obj.Key), "/") {
				continue
			}
			count++
			if count >= d.countCap {
				d.scan.RecordCount(string(space.KindS3), true)
				return space.ObjectCount{Count: d.countCap, Capped: true}, nil
			}
		}
	}

	d.scan.RecordCount(string(space.KindS3), false)
	return space.ObjectCount{Count: count}, nil
}

// MoveToStorageService downloads every object at or below src into dst.
// Objects whose key would resolve outside dst are reported as failures and
// never written.
func (d *Driver) MoveToStorageService(ctx context.Context, src, dst string, dstSpace space.Space) error {
	start := time.Now()
	srcKey := d.key(src)
	to := driver.StagingDestination(dst, dstSpace)
	logger.Info("Downloading s3://%s/%s to %s", d.opts.Bucket, srcKey, to)

	if dstSpace != nil {
		if err := dstSpace.CreateLocalDirectory(to); err != nil {
			logger.Warn("Creating local directory %s through space failed: %v", to, err)
		}
	}

	terr := &space.TransferError{Source: "s3://" + d.opts.Bucket + "/" + srcKey, Destination: to}
	files, found := 0, false

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.opts.Bucket),
		Prefix: aws.String(srcKey),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list s3://%s/%s: %w", d.opts.Bucket, srcKey, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			var rel, target string
			switch {
			case key == srcKey:
				rel, target = path.Base(key), to
			case srcKey == "" || strings.HasPrefix(key, srcKey+"/"):
				rel = strings.TrimPrefix(strings.TrimPrefix(key, srcKey), "/")
				target = filepath.Join(to, filepath.FromSlash(rel))
			default:
				continue
			}
			found = true
			if rel != "" && !filepath.IsLocal(filepath.FromSlash(rel)) {
				logger.Error("Refusing to download %s outside %s", key, to)
				terr.Add(rel, fmt.Errorf("object key %q escapes the destination", key))
				continue
			}
			if strings.HasSuffix(key, "/") {
				if err := os.MkdirAll(target, 0755); err != nil {
					terr.Add(rel, err)
				}
				continue
			}
			if err := d.download(ctx, key, target); err != nil {
				logger.Error("Failed to download %s to %s: %v", key, target, err)
				terr.Add(rel, err)
				continue
			}
			files++
		}
	}

	if !found {
		return fmt.Errorf("move s3://%s/%s: %w", d.opts.Bucket, srcKey, space.ErrNotFound)
	}

	d.transfer.RecordTransfer(string(space.KindS3), transfer.DirectionToStorageService, files, len(terr.Failures), time.Since(start))
	return terr.ErrOrNil()
}

func (d *Driver) download(ctx context.Context, key, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, out.Body)
	d.requests.RecordBytes("GetObject", n)
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// MoveFromStorageService uploads the staging file or tree src below dst.
func (d *Driver) MoveFromStorageService(ctx context.Context, src, dst string) error {
	start := time.Now()
	from := driver.Resolve(d.space.StagingPath(), src)
	dstKey := d.key(dst)
	logger.Info("Uploading %s to s3://%s/%s", from, d.opts.Bucket, dstKey)

	info, err := os.Stat(from)
	if err != nil {
		return fmt.Errorf("move %s: %w: %v", from, space.ErrNotFound, err)
	}

	terr := &space.TransferError{Source: from, Destination: "s3://" + d.opts.Bucket + "/" + dstKey}
	files := 0

	if !info.IsDir() {
		if err := d.upload(ctx, from, dstKey); err != nil {
			terr.Add(filepath.Base(from), err)
		} else {
			files++
		}
	} else {
		walkErr := filepath.WalkDir(from, func(p string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rel, _ := filepath.Rel(from, p)
			if err != nil {
				terr.Add(rel, err)
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			key := path.Join(dstKey, filepath.ToSlash(rel))
			if err := d.upload(ctx, p, key); err != nil {
				logger.Error("Failed to upload %s to %s: %v", p, key, err)
				terr.Add(rel, err)
				return nil
			}
			files++
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("move %s: %w", from, walkErr)
		}
	}

	d.transfer.RecordTransfer(string(space.KindS3), transfer.DirectionFromStorageService, files, len(terr.Failures), time.Since(start))
	return terr.ErrOrNil()
}

func (d *Driver) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.opts.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	d.requests.RecordBytes("PutObject", info.Size())
	return nil
}

// Validate requires a bucket and a region.
func (d *Driver) Validate() error {
	if d.opts.Bucket == "" {
		return &space.ConfigurationError{Field: "bucket", Reason: "required"}
	}
	if d.opts.Region == "" {
		return &space.ConfigurationError{Field: "region", Reason: "required"}
	}
	if d.client == nil {
		return &space.ConfigurationError{Reason: "S3 client is required"}
	}
	if strings.HasPrefix(d.opts.KeyPrefix, "/") {
		return &space.ConfigurationError{Field: "key_prefix", Reason: "must not start with /"}
	}
	return nil
}

var _ space.Driver = (*Driver)(nil)
