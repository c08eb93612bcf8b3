package leasedynamo

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/hackborn/lease"
)

// ------------------------------------------------------------
// AWS-BUILDER

// awsBuilder is a helper class for building API params.
type awsBuilder struct {
	keys map[string]*dynamodb.AttributeValue
	err  error
}

func (b awsBuilder) key(key string, value interface{}) awsBuilder {
	dst, err := b.marshalToMap(key, value, b.keys)
	b.keys = dst
	b.err = lease.MergeErr(b.err, err)
	return b
}

func (b awsBuilder) marshalToMap(key string, value interface{}, dst map[string]*dynamodb.AttributeValue) (map[string]*dynamodb.AttributeValue, error) {
	if dst == nil {
		dst = make(map[string]*dynamodb.AttributeValue)
	}
	v, err := dynamodbattribute.Marshal(value)
	if err != nil {
		return nil, err
	}
	dst[key] = v
	return dst, nil
}

// get fills in a strongly consistent read of my keys. An eventually
// consistent read could hide a competing owner write from the final check.
func (b awsBuilder) get(dst *dynamodb.GetItemInput) {
	if len(b.keys) > 0 {
		dst.Key = b.keys
	}
	dst.ConsistentRead = aws.Bool(true)
}
