package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/pkg/util"
)

// S3Store serves s3:// URIs, including S3-compatible endpoints such as R2
// or MinIO.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS chain applies.
func NewS3Store(ctx context.Context, bucket string, cfg config.S3Config) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = util.ContentType(localPath)
	}
	key := ObjectKey(folder, filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return URI{Scheme: "s3", Bucket: s.bucket, Key: key}.String(), nil
}

func (s *S3Store) Download(ctx context.Context, uri, localPath string) error {
	u, err := ParseURI(uri)
	if err != nil {
		return err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(u.Key),
	})
	if err != nil {
		return s.mapErr(uri, err)
	}
	defer out.Body.Close()

	if err := util.EnsureDir(filepath.Dir(localPath)); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", uri, err)
	}
	return f.Close()
}

func (s *S3Store) List(ctx context.Context, prefixURI string) ([]string, error) {
	u, err := ParseURI(prefixURI)
	if err != nil {
		return nil, err
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.Bucket),
		Prefix: aws.String(u.Key),
	})
	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefixURI, err)
		}
		for _, obj := range page.Contents {
			out = append(out, URI{Scheme: "s3", Bucket: u.Bucket, Key: aws.ToString(obj.Key)}.String())
		}
	}
	return out, nil
}

func (s *S3Store) Stat(ctx context.Context, uri string) (ObjectInfo, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return ObjectInfo{}, err
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(u.Key),
	})
	if err != nil {
		return ObjectInfo{}, s.mapErr(uri, err)
	}
	info := ObjectInfo{
		URI:         uri,
		Size:        aws.ToInt64(head.ContentLength),
		ContentType: aws.ToString(head.ContentType),
	}
	if head.LastModified != nil {
		info.Updated = *head.LastModified
	}
	return info, nil
}

func (s *S3Store) mapErr(uri string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return fmt.Errorf("s3 %s: %w", uri, err)
}
