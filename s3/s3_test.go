package leases3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/hackborn/lease"
	"github.com/micro-go/lock"
)

// TestPort runs the scripted port suite against every configured bucket.
func TestPort(t *testing.T) {
	suites := makeTestPorts(t)

	lease.RunTestPortSuite(t, suites)
}

// TestObjectLayout verifies the keys and documents written to the bucket.
func TestObjectLayout(t *testing.T) {
	cases := []struct {
		Prefix      string
		WantOwner   string
		WantCounter string
	}{
		{"", "deploy-owner.json", "deploy-counter.json"},
		{"locks", "locks/deploy-owner.json", "locks/deploy-counter.json"},
		{"locks/", "locks/deploy-owner.json", "locks/deploy-counter.json"},
	}
	expiry := time.Date(2001, 2, 3, 4, 5, 6, 789000000, time.UTC)
	for i, tc := range cases {
		client := newFakeS3()
		p, err := NewPort(Opts{Bucket: "b", Prefix: tc.Prefix}, client)
		lease.MustErr(err)
		ctx := context.Background()
		lease.MustErr(p.WriteOwner(ctx, "deploy", lease.NewOwner("a", expiry)))
		lease.MustErr(p.WriteCounter(ctx, "deploy", lease.NewCounter(3)))

		if have := client.object("b", tc.WantOwner); have != `{"lockOwnerName":"a","lockExpiryTimeStamp":"2001-02-03T04:05:06.789Z"}` {
			t.Fatalf("TestObjectLayout %d has owner document %q", i, have)
		}
		if have := client.object("b", tc.WantCounter); have != "3" {
			t.Fatalf("TestObjectLayout %d has counter document %q", i, have)
		}
	}
}

// TestMissingObjects verifies the errors that mean "no such object".
func TestMissingObjects(t *testing.T) {
	errOther := errors.New("connection reset")
	cases := []struct {
		Err         error
		WantMissing bool
	}{
		{awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil), true},
		{awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "req"), true},
		{awserr.NewRequestFailure(awserr.New("Whatever", "Not Found", nil), http.StatusNotFound, "req"), true},
		{awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchBucket, "No bucket", nil), http.StatusNotFound, "req"), false},
		{awserr.New("AccessDenied", "Access Denied", nil), false},
		{errOther, false},
	}
	for i, tc := range cases {
		if have := isMissing(tc.Err); have != tc.WantMissing {
			t.Fatalf("TestMissingObjects %d has %v but wants %v", i, have, tc.WantMissing)
		}
	}

	client := newFakeS3()
	client.err = errOther
	p, err := NewPort(Opts{Bucket: "b"}, client)
	lease.MustErr(err)
	if _, err := p.ReadOwner(context.Background(), "deploy"); !errors.Is(err, errOther) {
		t.Fatalf("TestMissingObjects has err %v but wants %v", err, errOther)
	}
}

// TestNewPort verifies construction requirements.
func TestNewPort(t *testing.T) {
	cases := []struct {
		Opts    Opts
		Client  s3iface.S3API
		WantErr error
	}{
		{Opts{Bucket: "b"}, newFakeS3(), nil},
		{Opts{}, newFakeS3(), errBucketRequired},
		{Opts{Bucket: "b"}, nil, errClientRequired},
	}
	for i, tc := range cases {
		if _, err := NewPort(tc.Opts, tc.Client); err != tc.WantErr {
			t.Fatalf("TestNewPort %d has err %v but wants %v", i, err, tc.WantErr)
		}
	}
	if _, err := NewPortFromSession(Opts{Bucket: "b"}, nil); err != errSessionRequired {
		t.Fatalf("TestNewPort has err %v but wants %v", err, errSessionRequired)
	}
}

// ------------------------------------------------------------
// TEST-CFG

type s3PortBootstrap struct {
	opts   Opts
	client s3iface.S3API
}

func (b *s3PortBootstrap) OpenPort() lease.Port {
	p, err := NewPort(b.opts, b.client)
	lease.MustErr(err)
	return p
}

func (b *s3PortBootstrap) ClosePort() error {
	return nil
}

// makeTestPorts makes the test ports for the testing configuration.
func makeTestPorts(t *testing.T) []lease.PortBootstrap {
	ports := []lease.PortBootstrap{&s3PortBootstrap{opts: Opts{Bucket: "leasetest", Prefix: "suite"}, client: newFakeS3()}}
	if !testing.Short() {
		// Integration runs against an S3 compatible store, such as minio.
		awskey0 := "LEASE_TESTING_AWS_S3_ENDPOINT"
		awskey1 := "LEASE_TESTING_AWS_S3_BUCKET"
		val0, val1 := os.Getenv(awskey0), os.Getenv(awskey1)
		if val0 == "" || val1 == "" {
			t.Log("Skipping integration test, must have envvars", awskey0, awskey1)
			return ports
		}

		cfg := &aws.Config{}
		cfg = cfg.WithRegion("us-west-2").WithEndpoint(val0).WithS3ForcePathStyle(true)
		sess := session.Must(session.NewSession(cfg))
		// Every suite case uses its own lock, the run prefix keeps runs apart.
		prefix := fmt.Sprintf("leasetest/%d", time.Now().UnixNano())
		ports = append(ports, &s3PortBootstrap{opts: Opts{Bucket: val1, Prefix: prefix}, client: s3.New(sess)})
	}
	return ports
}

// ------------------------------------------------------------
// FAKE-S3

// fakeS3 answers the object calls the port makes. Anything else panics
// through the nil embedded interface.
type fakeS3 struct {
	s3iface.S3API

	mutex   sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer lock.Locker(&f.mutex).Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.StringValue(in.Bucket)+"|"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	defer lock.Locker(&f.mutex).Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.objects[aws.StringValue(in.Bucket)+"|"+aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) object(bucket, key string) string {
	defer lock.Locker(&f.mutex).Unlock()
	return string(f.objects[bucket+"|"+key])
}
