package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/domain"
)

func request(trigger string, snapshot domain.Values) domain.ExecutionRequest {
	return domain.ExecutionRequest{Seq: 1, Trigger: trigger, Snapshot: snapshot, At: time.Now()}
}

func TestInvoke_ProgressOrdering(t *testing.T) {
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		env.Progress(domain.Patch{"x": 1})
		env.Progress(domain.Patch{"x": 2})
		return map[string]any{"x": 3}, nil
	}), "")

	var seen []any
	final, err := a.Invoke(context.Background(), request("a", nil), func(p domain.Patch) error {
		seen = append(seen, p["x"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, seen)
	assert.Equal(t, domain.Patch{"x": 3}, final)
}

func TestInvoke_ErrorContainment(t *testing.T) {
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		env.Progress(domain.Patch{"y": 5})
		return nil, &domain.HandlerError{Message: "boom"}
	}), "")

	var merged domain.Patch
	final, err := a.Invoke(context.Background(), request("", nil), func(p domain.Patch) error {
		merged = p
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.Nil(t, final)
	assert.Equal(t, domain.Patch{"y": 5}, merged)
}

func TestInvoke_RecoversPanics(t *testing.T) {
	a := New(IsolateFunc(func(context.Context, string, Env) (any, error) {
		panic("isolate bug")
	}), "")

	assert.NotPanics(t, func() {
		_, err := a.Invoke(context.Background(), request("", nil), func(domain.Patch) error { return nil })
		require.Error(t, err)
		var he *domain.HandlerError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, "isolate bug", he.Message)
		assert.NotEmpty(t, he.Stack)
	})
}

func TestInvoke_ContractViolationStopsDelivery(t *testing.T) {
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		env.Progress(domain.Patch{"ok": 1})
		env.Progress(domain.Patch{"ghost": 1})
		env.Progress(domain.Patch{"ok": 2})
		return map[string]any{"ok": 3}, nil
	}), "")

	var delivered []domain.Patch
	_, err := a.Invoke(context.Background(), request("", nil), func(p domain.Patch) error {
		if _, bad := p["ghost"]; bad {
			return domain.ErrMergeContract
		}
		delivered = append(delivered, p)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.True(t, errors.Is(err, domain.ErrMergeContract))
	assert.Equal(t, []domain.Patch{{"ok": 1}}, delivered)
}

func TestInvoke_NonObjectResult(t *testing.T) {
	a := New(IsolateFunc(func(context.Context, string, Env) (any, error) {
		return "not a patch", nil
	}), "")

	_, err := a.Invoke(context.Background(), request("", nil), func(domain.Patch) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrMergeContract))
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
}

func TestInvoke_LogsAndInputsAreIsolated(t *testing.T) {
	snapshot := domain.Values{"a": "hi"}
	var logs []domain.LogEntry
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		env.Log(domain.LevelInfo, "hello")
		env.Inputs["a"] = "tampered"
		return map[string]any{"trigger": env.Trigger}, nil
	}), "", WithLogSink(func(e domain.LogEntry) { logs = append(logs, e) }))

	final, err := a.Invoke(context.Background(), request("a", snapshot), func(domain.Patch) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "a", final["trigger"])
	assert.Equal(t, "hi", snapshot["a"])
	require.Len(t, logs, 1)
	assert.Equal(t, "hello", logs[0].Message)
}

func TestInvoke_RequireDefaultFails(t *testing.T) {
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		_, err := env.Require(ctx, "pkg")
		return nil, &domain.HandlerError{Message: err.Error(), Err: err}
	}), "")

	_, err := a.Invoke(context.Background(), request("", nil), func(domain.Patch) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrCapabilityLoad))
	assert.Equal(t, domain.SourceCapability, domain.NoticeSource(err))
}

func TestInvoke_Deadline(t *testing.T) {
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), "", WithDeadline(10*time.Millisecond))

	_, err := a.Invoke(context.Background(), request("", nil), func(domain.Patch) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrHandlerThrew))
	assert.False(t, errors.Is(err, domain.ErrIsolation))
}

func TestInvoke_CancelledSessionIsIsolationFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	a := New(IsolateFunc(func(ctx context.Context, _ string, env Env) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), "")

	go func() {
		<-started
		cancel()
	}()
	_, err := a.Invoke(ctx, request("", nil), func(domain.Patch) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrIsolation))
}
