// Package publish uploads the dist tree to S3.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/grammardist/internal/log"
)

// maxParallelUploads caps concurrent PutObject calls.
const maxParallelUploads = 8

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Summary reports what was uploaded.
type Summary struct {
	Files int
	Bytes int64
}

// S3 publishes a directory tree under a bucket prefix.
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
	runID  string
}

// NewS3 creates a publisher over an existing client.
func NewS3(client ObjectPutter, bucket, prefix, runID string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, runID: runID}
}

// NewS3FromConfig loads the default AWS credential chain for region.
func NewS3FromConfig(ctx context.Context, region, bucket, prefix, runID string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("publish.bucket must be set to publish")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix, runID), nil
}

// Key returns the object key for a root-relative slash path.
func (p *S3) Key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// Publish uploads every regular file under root.
func (p *S3) Publish(ctx context.Context, root string) (Summary, error) {
	var files []string
	err := filepath.WalkDir(root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, fp)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list %s: %w", root, err)
	}

	var total atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelUploads)
	for _, fp := range files {
		eg.Go(func() error {
			rel, err := filepath.Rel(root, fp)
			if err != nil {
				return err
			}
			n, err := p.upload(egCtx, fp, p.Key(filepath.ToSlash(rel)))
			if err != nil {
				return err
			}
			total.Add(n)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Files: len(files), Bytes: total.Load()}
	log.FromContext(ctx).Info("published dist", "bucket", p.bucket, "prefix", p.prefix, "files", summary.Files, "bytes", summary.Bytes)
	return summary, nil
}

func (p *S3) upload(ctx context.Context, file, key string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", file, err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	}
	if p.runID != "" {
		in.Metadata = map[string]string{"run-id": p.runID}
	}

	if _, err := p.client.PutObject(ctx, in); err != nil {
		return 0, fmt.Errorf("failed to upload s3://%s/%s: %w", p.bucket, key, err)
	}
	log.FromContext(ctx).Debug("uploaded object", "key", key, "bytes", info.Size())
	return info.Size(), nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}
