package leasedynamo

import (
	"errors"
)

// ------------------------------------------------------------
// CONST and VAR

var (
	errConditionFailed = errors.New("Condition failed")
	errDynamoRequired  = errors.New("Can't create DynamoDB")
	errSessionRequired = errors.New("Session is required")
	errTableRequired   = errors.New("Bad request: Table name required")
)
