package leasedynamo

// ------------------------------------------------------------
// AWS-RECORD

// awsRecord stores a single slot document in the lock table.
type awsRecord struct {
	Key   string `json:"lkey"` // The object key of the slot. MUST MATCH awsKeyName
	Value string `json:"lval"` // The slot document, exactly as an object store would hold it.
}
