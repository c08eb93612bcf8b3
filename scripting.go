package lease

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hackborn/sqi"
)

// scriptResponse captures the output of every command in a script.
type scriptResponse struct {
	History [][]interface{}
}

// scriptEnv is what a script runs against.
type scriptEnv struct {
	engine *Engine
	clock  *ManualClock
}

// runScript ingests a string in our script format and returns a response.
// The response will contain all outputs from every command found in the
// script. Answer an error if anything goes wrong with preparing a script
// (but note that I do not answer an error from running a command, all
// output is captured by the script response).
func runScript(ctx context.Context, _script interface{}, env scriptEnv) (scriptResponse, error) {
	resp := scriptResponse{}
	script, ok := _script.(string)
	if !ok {
		return resp, ErrBadRequest
	}

	dec := json.NewDecoder(strings.NewReader(script))
	for {
		m := make(map[string]interface{})
		if err := dec.Decode(&m); err == io.EOF {
			break
		} else if err != nil {
			return resp, err
		}
		for k, v := range m {
			r, e := runScriptCommand(ctx, k, v, env)
			if e != nil {
				return resp, e
			}
			if r != nil {
				resp.History = append(resp.History, r)
			}
		}
	}
	return resp, nil
}

func runScriptCommand(ctx context.Context, command string, script interface{}, env scriptEnv) ([]interface{}, error) {
	switch command {
	case acquireCmd:
		return runScriptAcquire(ctx, script, env)
	case releaseCmd:
		return runScriptRelease(ctx, script, env)
	case statusCmd:
		return runScriptStatus(ctx, script, env)
	case durCmd:
		return nil, runScriptDuration(script, env)
	}
	return nil, errors.New("Unknown script command (" + command + ")")
}

func runScriptAcquire(ctx context.Context, script interface{}, env scriptEnv) ([]interface{}, error) {
	owner := ""
	if err := readScriptJson(script, "/owner", &owner); err != nil {
		return nil, err
	}
	o := env.engine.Acquire(ctx, owner)
	return []interface{}{o.Result, o.Kind}, nil
}

func runScriptRelease(ctx context.Context, script interface{}, env scriptEnv) ([]interface{}, error) {
	owner := ""
	if err := readScriptJson(script, "/owner", &owner); err != nil {
		return nil, err
	}
	err := env.engine.Release(ctx, owner)
	return []interface{}{err}, nil
}

func runScriptStatus(ctx context.Context, script interface{}, env scriptEnv) ([]interface{}, error) {
	owner := ""
	if err := readScriptJson(script, "/owner", &owner); err != nil {
		return nil, err
	}
	current, err := env.engine.Status(ctx, owner)
	if err != nil {
		return []interface{}{"", false, err}, nil
	}
	return []interface{}{current.Name, current.Valid(env.clock.Now()), nil}, nil
}

func runScriptDuration(script interface{}, env scriptEnv) error {
	var seconds int64
	if err := readScriptJson(script, "/seconds", &seconds); err != nil {
		return err
	}
	env.clock.Advance(time.Duration(seconds) * time.Second)
	return nil
}

func readScriptJson(src interface{}, path string, dst interface{}) error {
	v, err := sqi.Eval(path, src, nil)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// ------------------------------------------------------------
// CONST and VAR

const (
	acquireCmd = "a"
	releaseCmd = "r"
	statusCmd  = "s"
	durCmd     = "d"
)
