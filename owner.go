package lease

import (
	"encoding/json"
	"time"
)

// ------------------------------------------------------------
// OWNER

// Owner describes who currently holds a lock and until when.
// The zero value is NoOwner.
type Owner struct {
	Name   string    // The identity of the holder. Empty is reserved for NoOwner.
	Expiry time.Time // The time at which the lease ends. Zero means no expiry.
}

// NoOwner is the sentinel for an unheld lock.
var NoOwner = Owner{}

// NewOwner answers an owner holding the lease until expiry.
func NewOwner(name string, expiry time.Time) Owner {
	return Owner{Name: name, Expiry: expiry}
}

// IsNoOwner answers true only when both the name and the expiry are empty.
func (o Owner) IsNoOwner() bool {
	return o.Name == NoOwner.Name && o.Expiry.IsZero()
}

// RemainingSeconds answers the seconds left on the lease at now. An owner
// without an expiry has 0 remaining; an expired owner has a negative value.
func (o Owner) RemainingSeconds(now time.Time) float64 {
	if o.Expiry.IsZero() {
		return 0
	}
	return o.Expiry.Sub(now).Seconds()
}

// Valid answers true if the lease is held and has not expired at now.
func (o Owner) Valid(now time.Time) bool {
	return o.Name != "" && o.RemainingSeconds(now) > 0
}

// Equal answers true if both owners name the same holder and expiry instant.
func (o Owner) Equal(b Owner) bool {
	return o.Name == b.Name && o.Expiry.Equal(b.Expiry)
}

func (o Owner) String() string {
	if o.IsNoOwner() {
		return "<no owner>"
	}
	if o.Expiry.IsZero() {
		return o.Name
	}
	return o.Name + " until " + o.Expiry.UTC().Format(expiryLayout)
}

// ------------------------------------------------------------
// OWNER-RECORD

// ownerRecord is the persisted form of an Owner.
type ownerRecord struct {
	Name   string  `json:"lockOwnerName"`
	Expiry *string `json:"lockExpiryTimeStamp,omitempty"`
}

// MarshalOwner answers the persisted document for o.
func MarshalOwner(o Owner) ([]byte, error) {
	r := ownerRecord{Name: o.Name}
	if !o.Expiry.IsZero() {
		s := o.Expiry.UTC().Format(expiryLayout)
		r.Expiry = &s
	}
	return json.Marshal(r)
}

// UnmarshalOwner answers the Owner in a persisted document. A missing or
// empty document is NoOwner.
func UnmarshalOwner(data []byte) (Owner, error) {
	if len(data) == 0 {
		return NoOwner, nil
	}
	r := ownerRecord{}
	if err := json.Unmarshal(data, &r); err != nil {
		return NoOwner, err
	}
	o := Owner{Name: r.Name}
	if r.Expiry != nil && *r.Expiry != "" {
		t, err := time.Parse(time.RFC3339Nano, *r.Expiry)
		if err != nil {
			return NoOwner, err
		}
		o.Expiry = t
	}
	return o, nil
}

// ------------------------------------------------------------
// CONST and VAR

const (
	// ISO-8601 in UTC with milliseconds, the same shape as a JavaScript toISOString().
	expiryLayout = "2006-01-02T15:04:05.000Z07:00"
)
