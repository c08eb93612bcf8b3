package leasedynamo

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/hackborn/lease"
)

// ------------------------------------------------------------
// AWS-PORT TABLE MANAGEMENT

// createTable() creates my lock table.
func (p *awsPort) createTable() error {
	if p.opts.Table == "" {
		return errTableRequired
	}
	// Define table
	att := &dynamodb.AttributeDefinition{
		AttributeName: aws.String(awsKeyName),
		AttributeType: aws.String("S"),
	}
	key := &dynamodb.KeySchemaElement{
		AttributeName: aws.String(awsKeyName),
		KeyType:       aws.String("HASH"),
	}
	params := &dynamodb.CreateTableInput{
		TableName:            aws.String(p.opts.Table),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{att},
		KeySchema:            []*dynamodb.KeySchemaElement{key},
		// Two items per lock, each touched a handful of times per acquisition.
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}

	// Create table
	_, err := p.db.CreateTable(params)
	if err != nil {
		// Indicates the table already exists.
		if isAwsErrorCode(err, dynamodb.ErrCodeResourceInUseException) {
			return nil
		}
		return err
	}

	// Wait for table to be ready
	return wait(func() (bool, error) {
		status, err := p.tableStatus(p.opts.Table)
		return status == awsReady, err
	})
}

// deleteTable() deletes the table with the given name. Obviously this is an incredibly
// dangerous function; it's used by testing but should not be used otherwise.
func (p *awsPort) deleteTable() {
	if p.opts.Table == "" {
		panic("awsPort.deleteTable() with no table name")
	}
	params := &dynamodb.DeleteTableInput{
		TableName: aws.String(p.opts.Table),
	}
	_, err := p.db.DeleteTable(params)
	if err != nil {
		if isAwsErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
			return
		}
		panic("Error deleting table: " + err.Error())
	}
	lease.MustErr(wait(func() (bool, error) {
		status, err := p.tableStatus(p.opts.Table)
		return status == awsMissing, err
	}))
}

// tableStatus() answers the status of the requested table.
func (p *awsPort) tableStatus(name string) (awsTableStatus, error) {
	params := &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	}
	r, err := p.db.DescribeTable(params)
	if err != nil {
		if isAwsErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
			return awsMissing, nil
		}
		return awsMissing, err
	}

	switch aws.StringValue(r.Table.TableStatus) {
	case dynamodb.TableStatusCreating:
		return awsCreating, nil
	default:
		return awsReady, nil
	}
}

// ------------------------------------------------------------
// BOILERPLATE

func isAwsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case code:
			return true
		}
	}
	return false
}

// ------------------------------------------------------------
// WAITING

const (
	waitTime = 120 // in seconds
)

type condition func() (bool, error)

// wait() waits for the condition to be true, failing
// if waitTime elapses or the condition errors.
func wait(cond condition) error {
	deadline := time.Now().Add(waitTime * time.Second)
	for time.Now().Before(deadline) {
		ok, err := cond()
		if err != nil {
			return err
		} else if ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errConditionFailed
}

// ------------------------------------------------------------
// CONST and VAR

type awsTableStatus int

const (
	awsMissing  awsTableStatus = iota // The table does not exist
	awsCreating                       // The table is being created
	awsReady                          // The table is ready
)
