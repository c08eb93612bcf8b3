package leases3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/hackborn/lease"
)

// ------------------------------------------------------------
// S3-PORT

// Opts describes where the lock documents live.
type Opts struct {
	Bucket string // Required.
	Prefix string // Optional. A missing trailing '/' is added.
}

// s3Port provides a lease.Port on an S3 bucket. Each slot is one object.
type s3Port struct {
	client s3iface.S3API
	opts   Opts
}

// NewPortFromSession constructs a new port based on the provided AWS session.
func NewPortFromSession(opts Opts, sess *session.Session) (lease.Port, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	return NewPort(opts, s3.New(sess))
}

// NewPort constructs a new port on an existing client. The bucket must exist.
func NewPort(opts Opts, client s3iface.S3API) (lease.Port, error) {
	if client == nil {
		return nil, errClientRequired
	}
	if opts.Bucket == "" {
		return nil, errBucketRequired
	}
	opts.Prefix = lease.NormalizePrefix(opts.Prefix)
	return &s3Port{client: client, opts: opts}, nil
}

func (p *s3Port) ReadOwner(ctx context.Context, name string) (lease.Owner, error) {
	data, err := p.getObject(ctx, lease.OwnerKey(p.opts.Prefix, name))
	if err != nil {
		return lease.NoOwner, err
	}
	return lease.UnmarshalOwner(data)
}

func (p *s3Port) WriteOwner(ctx context.Context, name string, owner lease.Owner) error {
	data, err := lease.MarshalOwner(owner)
	if err != nil {
		return err
	}
	return p.putObject(ctx, lease.OwnerKey(p.opts.Prefix, name), data, ownerContentType)
}

func (p *s3Port) ReadCounter(ctx context.Context, name string) (lease.Counter, error) {
	data, err := p.getObject(ctx, lease.CounterKey(p.opts.Prefix, name))
	if err != nil {
		return lease.Undefined, err
	}
	return lease.UnmarshalCounter(data)
}

func (p *s3Port) WriteCounter(ctx context.Context, name string, counter lease.Counter) error {
	data, err := lease.MarshalCounter(counter)
	if err != nil {
		return err
	}
	return p.putObject(ctx, lease.CounterKey(p.opts.Prefix, name), data, counterContentType)
}

// getObject answers the object body, or no data if the object is missing.
func (p *s3Port) getObject(ctx context.Context, key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(key),
	}
	r, err := p.client.GetObjectWithContext(ctx, params)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func (p *s3Port) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	params := &s3.PutObjectInput{
		Bucket:      aws.String(p.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	_, err := p.client.PutObjectWithContext(ctx, params)
	return err
}

// ------------------------------------------------------------
// BOILERPLATE

// isMissing answers true for the errors S3 and its lookalikes use for an
// absent key.
func isMissing(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	var rerr awserr.RequestFailure
	return errors.As(err, &rerr) && rerr.StatusCode() == http.StatusNotFound && aerr.Code() != s3.ErrCodeNoSuchBucket
}

// ------------------------------------------------------------
// CONST and VAR

const (
	ownerContentType   = "application/json"
	counterContentType = "text/plain"
)

var (
	errBucketRequired  = errors.New("Bad request: Bucket name required")
	errClientRequired  = errors.New("Can't create S3 client")
	errSessionRequired = errors.New("Session is required")
)
