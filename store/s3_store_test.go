package store

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "historykv-test"

// fakeS3 serves the handful of path-style S3 calls the engine makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucketPrefix := "/" + testBucket
	if !strings.HasPrefix(r.URL.Path, bucketPrefix) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message></Error>`)
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, bucketPrefix), "/")

	switch {
	case r.Method == http.MethodGet && key == "":
		f.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)
	case r.Method == http.MethodPut:
		data, _ := ioutil.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	var b strings.Builder
	n := 0
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
			n++
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>%s</ListBucketResult>`,
		testBucket, prefix, n, b.String())
}

func newFakeS3Client(t *testing.T) (*s3.Client, *fakeS3) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		EndpointResolver: aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{URL: srv.URL}, nil
		}),
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, fake
}

func TestS3Store(t *testing.T) {
	client, _ := newFakeS3Client(t)
	s, err := NewS3Store(context.Background(), S3Options{Bucket: testBucket, Client: client})
	require.NoError(t, err)
	defer s.Close()
	testContract(t, s)
}

func TestS3Store_ObjectKeys(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeS3Client(t)

	s, err := NewS3Store(ctx, S3Options{Bucket: testBucket, Namespace: "ns", Client: client})
	require.NoError(t, err)

	require.NoError(t, s.PutValue(ctx, "history", []byte(`["a"]`)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []byte(`["a"]`), fake.objects["ns/history"])
}

func TestS3Store_MissingBucket(t *testing.T) {
	ctx := context.Background()
	client, _ := newFakeS3Client(t)

	s, err := NewS3Store(ctx, S3Options{Bucket: "no-such-bucket", Client: client})
	require.NoError(t, err)

	v, err := s.GetValue(ctx, "history")
	assert.Nil(t, v)
	assert.Error(t, err)
	assert.False(t, notFound(err))

	assert.Error(t, s.PutValue(ctx, "history", []byte(`["a"]`)))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Options{})
	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestNotFound(t *testing.T) {
	assert.False(t, notFound(nil))
	assert.False(t, notFound(fmt.Errorf("boom")))
}
