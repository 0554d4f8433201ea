package govm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/sandbox"
)

func testEnv(inputs domain.Values, trigger string, patches *[]domain.Patch, logs *[]string) sandbox.Env {
	return sandbox.Env{
		Inputs:  inputs,
		Trigger: trigger,
		Progress: func(p domain.Patch) {
			if patches != nil {
				*patches = append(*patches, p)
			}
		},
		Require: func(ctx context.Context, id string) (any, error) {
			if id == "greeting" {
				return "hello", nil
			}
			return nil, &domain.CapabilityError{ID: id, Err: errors.New("missing")}
		},
		Log: func(level domain.LogLevel, msg string) {
			if logs != nil {
				*logs = append(*logs, string(level)+":"+msg)
			}
		},
	}
}

const upperSource = `
import "strings"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	a, _ := inputs["a"].(string)
	return map[string]any{"b": strings.ToUpper(a)}, nil
}
`

func TestRun_UpperCase(t *testing.T) {
	out, err := New().Run(context.Background(), upperSource, testEnv(domain.Values{"a": "hi"}, "a", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": "HI"}, out)
}

func TestRun_ProgressAndLogs(t *testing.T) {
	src := `package main

import "fmt"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	progress(map[string]any{"x": 1})
	progress(map[string]any{"x": 2})
	fmt.Println("working on", changed)
	g, err := require("greeting")
	if err != nil {
		return nil, err
	}
	return map[string]any{"x": 3, "g": g}, nil
}
`
	var patches []domain.Patch
	var logs []string
	out, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "run", &patches, &logs))
	require.NoError(t, err)
	assert.Equal(t, []domain.Patch{{"x": 1}, {"x": 2}}, patches)
	assert.Equal(t, map[string]any{"x": 3, "g": "hello"}, out)
	assert.Equal(t, []string{"info:working on run"}, logs)
}

func TestRun_HandlerError(t *testing.T) {
	src := `
import "errors"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	progress(map[string]any{"y": 5})
	return nil, errors.New("bad input")
}
`
	var patches []domain.Patch
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", &patches, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.Contains(t, err.Error(), "bad input")
	assert.Len(t, patches, 1)
}

func TestRun_CapabilityFailure(t *testing.T) {
	src := `
func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	_, err := require("missing-pkg")
	return nil, err
}
`
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", nil, nil))
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.True(t, errors.Is(err, domain.ErrCapabilityLoad))
}

func TestRun_UnrelatedErrorAfterCapabilityFailure(t *testing.T) {
	src := `
import "errors"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	if _, err := require("missing-pkg"); err == nil {
		return nil, nil
	}
	return nil, errors.New("bad input")
}
`
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.False(t, errors.Is(err, domain.ErrCapabilityLoad))
}

func TestRun_Panic(t *testing.T) {
	src := `
func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	var m map[string]any
	m["boom"] = 1
	return m, nil
}
`
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", nil, nil))
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
}

func TestRun_ForbiddenImport(t *testing.T) {
	src := `
import "os"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	os.Exit(1)
	return nil, nil
}
`
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.Contains(t, err.Error(), "forbidden imports")
}

func TestRun_WrongSignature(t *testing.T) {
	src := `
func Handle(s string) string { return s }
`
	_, err := New().Run(context.Background(), src, testEnv(domain.Values{}, "", nil, nil))
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
}

func TestRun_ContextEnds(t *testing.T) {
	src := `
import "time"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	time.Sleep(2 * time.Second)
	return nil, nil
}
`
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New().Run(ctx, src, testEnv(domain.Values{}, "", nil, nil))
	assert.True(t, errors.Is(err, domain.ErrIsolation))
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := &lineWriter{level: domain.LevelInfo, log: func(_ domain.LogLevel, s string) { lines = append(lines, s) }}
	_, _ = w.Write([]byte("one\ntw"))
	_, _ = w.Write([]byte("o\nthree"))
	w.Flush()
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestCheck(t *testing.T) {
	i := New()
	assert.NoError(t, i.Check(upperSource))
	assert.Error(t, i.Check("func Handle( {"))
	assert.ErrorContains(t, i.Check("import \"os\"\n\nfunc Handle() {}\n"), "forbidden imports")
}
