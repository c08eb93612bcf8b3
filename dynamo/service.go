package leasedynamo

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/hackborn/lease"
)

// ------------------------------------------------------------
// AWS-PORT

// Opts describes where the lock documents live.
type Opts struct {
	Table  string // Required. Created on construction if missing.
	Prefix string // Optional key prefix, shared with the object store layout.
}

// awsPort provides a lease.Port on a DynamoDB table. The table is used as
// a plain key / document store: every write is an unconditional PutItem,
// so the protocol gets the same guarantees it gets from an object store
// and nothing more.
type awsPort struct {
	db   dynamodbiface.DynamoDBAPI
	opts Opts
}

// NewPortFromSession constructs a new port based on the provided AWS session.
// I will internally manage my own connection to a DynamoDB client.
func NewPortFromSession(opts Opts, sess *session.Session) (lease.Port, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	db := dynamodb.New(sess)
	if db == nil {
		return nil, errDynamoRequired
	}
	return NewPort(opts, db)
}

// NewPort constructs a new port on an existing client, creating the table
// if needed.
func NewPort(opts Opts, db dynamodbiface.DynamoDBAPI) (lease.Port, error) {
	return _newPort(opts, db)
}

func _newPort(opts Opts, db dynamodbiface.DynamoDBAPI) (*awsPort, error) {
	if db == nil {
		return nil, errDynamoRequired
	}
	if opts.Table == "" {
		return nil, errTableRequired
	}
	p := &awsPort{db: db, opts: opts}
	// Make sure the table has been constructed
	if err := p.createTable(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *awsPort) ReadOwner(ctx context.Context, name string) (lease.Owner, error) {
	data, err := p.getItem(ctx, lease.OwnerKey(p.opts.Prefix, name))
	if err != nil {
		return lease.NoOwner, err
	}
	return lease.UnmarshalOwner(data)
}

func (p *awsPort) WriteOwner(ctx context.Context, name string, owner lease.Owner) error {
	data, err := lease.MarshalOwner(owner)
	if err != nil {
		return err
	}
	return p.putItem(ctx, lease.OwnerKey(p.opts.Prefix, name), data)
}

func (p *awsPort) ReadCounter(ctx context.Context, name string) (lease.Counter, error) {
	data, err := p.getItem(ctx, lease.CounterKey(p.opts.Prefix, name))
	if err != nil {
		return lease.Undefined, err
	}
	return lease.UnmarshalCounter(data)
}

func (p *awsPort) WriteCounter(ctx context.Context, name string, counter lease.Counter) error {
	data, err := lease.MarshalCounter(counter)
	if err != nil {
		return err
	}
	return p.putItem(ctx, lease.CounterKey(p.opts.Prefix, name), data)
}

// getItem is a convenience wrapper for DynamoDB's GetItem(). A missing item
// answers no data.
func (p *awsPort) getItem(ctx context.Context, key string) ([]byte, error) {
	b := awsBuilder{}.key(awsKeyName, key)
	if b.err != nil {
		return nil, b.err
	}
	params := &dynamodb.GetItemInput{
		TableName: aws.String(p.opts.Table),
	}
	b.get(params)
	r, err := p.db.GetItemWithContext(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(r.Item) < 1 {
		return nil, nil
	}
	record := awsRecord{}
	if err = dynamodbattribute.UnmarshalMap(r.Item, &record); err != nil {
		return nil, err
	}
	return []byte(record.Value), nil
}

// putItem is a convenience wrapper for DynamoDB's PutItem().
func (p *awsPort) putItem(ctx context.Context, key string, data []byte) error {
	atts, err := dynamodbattribute.MarshalMap(awsRecord{Key: key, Value: string(data)})
	if err != nil {
		return err
	}
	params := &dynamodb.PutItemInput{
		TableName: aws.String(p.opts.Table),
		Item:      atts,
	}
	_, err = p.db.PutItemWithContext(ctx, params)
	return err
}

// ------------------------------------------------------------
// CONST and VAR

const (
	awsKeyName = "lkey"
)
