package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
)

// Ensure s3Store implements Store interface.
var _ Store = (*s3Store)(nil)

// S3Options configures NewS3Store.
type S3Options struct {
	Bucket    string     // Required. The name of the S3 bucket to use.
	Namespace string     // Optional. Prefixed to all object keys. Defaults to DefaultNamespace.
	Endpoint  string     // Optional. Custom endpoint URL, e.g. a local S3-compatible server.
	Client    *s3.Client // Optional. If not provided, a client is configured from the environment.
}

// s3Store keeps each key in its own object.
type s3Store struct {
	client    *s3.Client
	bucket    string
	namespace string
}

// NewS3Store creates an engine which stores data in AWS S3.
func NewS3Store(ctx context.Context, opts S3Options) (Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if opts.Endpoint != "" {
			endpoint := opts.Endpoint
			loadOpts = append(loadOpts, config.WithEndpointResolver(
				aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
					return aws.Endpoint{URL: endpoint}, nil
				}),
			))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("error loading aws config: %w", err)
		}
		opts.Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = opts.Endpoint != ""
		})
	}

	return &s3Store{
		client:    opts.Client,
		bucket:    opts.Bucket,
		namespace: opts.Namespace,
	}, nil
}

// ns appends the namespace prefix to the given key.
func (s *s3Store) ns(key string) string {
	return fmt.Sprintf("%s/%s", s.namespace, key)
}

func (s *s3Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.ns(prefix)),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			log.WithError(err).WithField("prefix", prefix).Error("error listing s3 objects")
			return nil, fmt.Errorf("error scanning keys: %w", err)
		}
		for _, c := range output.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(c.Key), s.namespace+"/"))
		}
	}
	return keys, nil
}

func (s *s3Store) GetValue(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
	})
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Error("error getting s3 object")
		return nil, fmt.Errorf("error getting key: %w", err)
	}
	defer r.Body.Close()

	data, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading key: %w", err)
	}
	return data, nil
}

func (s *s3Store) PutValue(ctx context.Context, key string, value []byte) error {
	log.WithField("key", key).WithField("length", len(value)).Debug("s3 put")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		log.WithError(err).WithField("key", key).Error("error putting s3 object")
		return fmt.Errorf("error putting key: %w", err)
	}
	return nil
}

// DeleteKey removes the object. S3 reports success for objects that do not exist.
func (s *s3Store) DeleteKey(ctx context.Context, key string) error {
	log.WithField("key", key).Debug("s3 delete")
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
	})
	if err != nil {
		log.WithError(err).WithField("key", key).Error("error deleting s3 object")
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

// Close is a no-op, the s3 client holds no connections of its own.
func (s *s3Store) Close() error {
	return nil
}

// notFound checks if an error is an S3 NoSuchKey error. Other 404s, such as
// NoSuchBucket, are failures of the store.
func notFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
