package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

// RunTestPortSuite provides scripted testing for a storage port, allowing
// chained command lists run through an engine. It's a little painful to
// write tests, but there isn't much value in testing a single storage call.
// This is the main test function for any port implementations: Send in a
// bootstrap on the port for the standard testing.
func RunTestPortSuite(t *testing.T, suites []PortBootstrap) {
	cases := []struct {
		Script   string
		WantResp scriptResponse
	}{
		// Acquire empty lock
		{buildScript(areq("0")), buildResp(aresp(Acquired, KindNone))},
		// Renew my existing lock
		{buildScript(areq("0"), durS(30), areq("0")), buildResp(aresp(Acquired, KindNone), aresp(Acquired, KindNone))},
		// Fail acquiring existing, valid lock
		{buildScript(areq("0"), areq("1")), buildResp(aresp(Acquired, KindNone), aresp(NotAcquired, KindContention))},
		// Acquire someone else's lock that expires within my budget
		{buildScript(areq("0"), durS(61), areq("1")), buildResp(aresp(Acquired, KindNone), aresp(Acquired, KindNone))},
		// Acquire someone else's expired lock
		{buildScript(areq("0"), durS(600), areq("1"), sreq("1")), buildResp(aresp(Acquired, KindNone), aresp(Acquired, KindNone), sresp("1", true))},
		// Reject an empty owner
		{buildScript(areq("")), buildResp(aresp(NotAcquired, KindRequest))},
		// Status of a missing lock
		{buildScript(sreq("")), buildResp(sresp("", false))},
		// Expired locks are not cleared
		{buildScript(areq("0"), durS(600), sreq("0")), buildResp(aresp(Acquired, KindNone), sresp("0", false))},
		// Unlock a missing lock
		{buildScript(rreq("0")), buildResp(rresp(nil))},
		// Unlock an existing lock
		{buildScript(areq("0"), rreq("0"), sreq("0")), buildResp(aresp(Acquired, KindNone), rresp(nil), sresp("", false))},
		// Unlocking someone else's lock leaves it alone
		{buildScript(areq("0"), rreq("1"), sreq("0")), buildResp(aresp(Acquired, KindNone), rresp(nil), sresp("0", true))},
		// Acquire after a release
		{buildScript(areq("0"), rreq("0"), areq("1")), buildResp(aresp(Acquired, KindNone), rresp(nil), aresp(Acquired, KindNone))},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			for _, b := range suites {
				runTestPort(t, b, fmt.Sprintf("suite%d", i), tc.Script, tc.WantResp)
			}
		})
	}
}

func runTestPort(t *testing.T, b PortBootstrap, lock string, script string, wantResp scriptResponse) {
	p := b.OpenPort()
	defer b.ClosePort()

	clock := NewManualClock(suiteStartTime)
	engine, err := NewEngine(EngineOpts{Lock: lock, Budget: 2 * time.Minute, Clock: clock}, p)
	MustErr(err)

	ctx, cancel := context.WithTimeout(context.Background(), suiteTimeout)
	defer cancel()
	haveResp, err := runScript(ctx, script, scriptEnv{engine: engine, clock: clock})
	MustErr(err)
	if !wantResp.equals(haveResp) {
		t.Fatalf("Mismatch have\n%v\nwant\n%v", haveResp, wantResp)
	}
}

// ------------------------------------------------------------
// BUILDING

func buildScript(elem ...interface{}) string {
	var b strings.Builder
	for _, e := range elem {
		data, err := json.Marshal(e)
		MustErr(err)
		b.WriteString(string(data))
	}
	return b.String()
}

// durS creates a scripting object that advances the clock.
func durS(seconds int64) interface{} {
	return cmd(durCmd, map[string]interface{}{"seconds": seconds})
}

// areq returns a scripting object to acquire the lock.
func areq(owner string) interface{} {
	return cmd(acquireCmd, map[string]interface{}{"owner": owner})
}

// rreq returns a scripting object to release the lock.
func rreq(owner string) interface{} {
	return cmd(releaseCmd, map[string]interface{}{"owner": owner})
}

// sreq returns a scripting object to read the lock status.
func sreq(owner string) interface{} {
	return cmd(statusCmd, map[string]interface{}{"owner": owner})
}

func cmd(name string, body map[string]interface{}) interface{} {
	c := make(map[string]interface{})
	c[name] = body
	return c
}

func buildResp(elem ...[]interface{}) scriptResponse {
	resp := scriptResponse{}
	for _, e := range elem {
		resp.History = append(resp.History, e)
	}
	return resp
}

// aresp creates a response for a script acquire request.
func aresp(result Result, kind ErrorKind) []interface{} {
	return []interface{}{result, kind}
}

// rresp creates a response for a script release request.
func rresp(err error) []interface{} {
	return []interface{}{err}
}

// sresp creates a response for a script status request.
func sresp(owner string, valid bool) []interface{} {
	return []interface{}{owner, valid, nil}
}

// ------------------------------------------------------------
// COMPARING

func (a scriptResponse) equals(b scriptResponse) bool {
	if len(a.History) != len(b.History) {
		return false
	}
	for i, ah := range a.History {
		bh := b.History[i]
		if len(ah) != len(bh) {
			return false
		}
		for ii, ahh := range ah {
			if !interfaceEquals(ahh, bh[ii]) {
				return false
			}
		}
	}
	return true
}

func interfaceEquals(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == b {
		return true
	}
	switch aa := a.(type) {
	case error:
		if bb, ok := b.(error); ok {
			return aa.Error() == bb.Error()
		}
	}
	return false
}

// ------------------------------------------------------------
// PORT-BOOTSTRAP

// PortBootstrap is responsible for initializing and cleaning up a port during testing.
type PortBootstrap interface {
	OpenPort() Port
	ClosePort() error
}

// ------------------------------------------------------------
// CONST and VAR

var (
	suiteStartTime = time.Date(2000, time.January, 1, 13, 0, 0, 0, time.UTC)
	suiteTimeout   = 30 * time.Second
)
