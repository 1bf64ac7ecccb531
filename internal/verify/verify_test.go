package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/thruflo/gantry/internal/logging"
)

func TestTracker(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	assert.False(t, tr.IsVerified(ScopeTask, "unknown"))

	tr.RecordVerification(ScopeTask, "t1", true)
	assert.True(t, tr.IsVerified(ScopeTask, "t1"))
	assert.False(t, tr.IsVerified(ScopeComponent, "t1"), "scope is part of the key")

	tr.RecordVerification(ScopeTask, "t1", false)
	assert.False(t, tr.IsVerified(ScopeTask, "t1"), "last write wins")

	passed, ok := tr.Lookup(ScopeTask, "t1")
	assert.True(t, ok)
	assert.False(t, passed)
}

func TestTrackerRecordsAndRestore(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.RecordVerification(ScopeTask, "b", true)
	tr.RecordVerification(ScopeModule, "m", false)
	tr.RecordVerification(ScopeTask, "a", true)

	records := tr.Records()
	assert.Equal(t, []Record{
		{Scope: ScopeModule, ID: "m", Passed: false},
		{Scope: ScopeTask, ID: "a", Passed: true},
		{Scope: ScopeTask, ID: "b", Passed: true},
	}, records)

	restored := NewTracker()
	restored.Restore(records)
	assert.Equal(t, records, restored.Records())
}

func TestGate(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	gate := NewGate(tr)

	d := gate.ValidateCompletion(ScopeTask, "t1")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.RejectionReason, "no verification on record")

	tr.RecordVerification(ScopeTask, "t1", false)
	d = gate.ValidateCompletion(ScopeTask, "t1")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.RejectionReason, "last verification failed")

	tr.RecordVerification(ScopeTask, "t1", true)
	d = gate.ValidateCompletion(ScopeTask, "t1")
	assert.True(t, d.Allowed)
	assert.Empty(t, d.RejectionReason)
}

func TestParseScope(t *testing.T) {
	t.Parallel()

	for _, s := range []Scope{ScopeTask, ScopeComponent, ScopeModule} {
		parsed, err := ParseScope(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseScope("subtask")
	assert.Error(t, err)
}

func TestCommandVerifier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("passing command", func(t *testing.T) {
		t.Parallel()
		v := &CommandVerifier{Command: `test "$GANTRY_VERIFY_ID" = t1`}
		verdict, err := v.Verify(ctx, Request{Scope: ScopeTask, ID: "t1"})
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})

	t.Run("failing command reports output as gaps", func(t *testing.T) {
		t.Parallel()
		v := &CommandVerifier{Command: `echo "missing test for parser"; echo; echo "lint failed"; exit 1`}
		verdict, err := v.Verify(ctx, Request{Scope: ScopeTask, ID: "t1"})
		require.NoError(t, err)
		assert.False(t, verdict.Passed)
		assert.Equal(t, []string{"missing test for parser", "lint failed"}, verdict.Gaps)
	})

	t.Run("silent failure", func(t *testing.T) {
		t.Parallel()
		v := &CommandVerifier{Command: `exit 3`}
		verdict, err := v.Verify(ctx, Request{Scope: ScopeModule, ID: "m"})
		require.NoError(t, err)
		assert.False(t, verdict.Passed)
		assert.Equal(t, []string{"verification command exited with status 3"}, verdict.Gaps)
	})

	t.Run("evidence on stdin", func(t *testing.T) {
		t.Parallel()
		v := &CommandVerifier{Command: `grep -q "all tests pass"`}
		verdict, err := v.Verify(ctx, Request{Scope: ScopeTask, ID: "t1", Evidence: "ok: all tests pass"})
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})

	t.Run("no command", func(t *testing.T) {
		t.Parallel()
		_, err := (&CommandVerifier{}).Verify(ctx, Request{})
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := (&CommandVerifier{Command: "sleep 5"}).Verify(cctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	logger, logs := logging.NewObserved(zapcore.InfoLevel)
	tr := NewTracker()
	rec := &Recorder{
		Verifier: VerifierFunc(func(ctx context.Context, req Request) (Verdict, error) {
			return Verdict{Passed: req.ID == "good"}, nil
		}),
		Tracker: tr,
		Logger:  logger,
	}

	_, err := rec.Run(context.Background(), Request{Scope: ScopeTask, ID: "good"})
	require.NoError(t, err)
	_, err = rec.Run(context.Background(), Request{Scope: ScopeTask, ID: "bad"})
	require.NoError(t, err)

	assert.True(t, tr.IsVerified(ScopeTask, "good"))
	passed, ok := tr.Lookup(ScopeTask, "bad")
	assert.True(t, ok)
	assert.False(t, passed)
	assert.Equal(t, 2, logs.FilterMessage("verification recorded").Len())

	failing := &Recorder{
		Verifier: VerifierFunc(func(context.Context, Request) (Verdict, error) {
			return Verdict{}, errors.New("oracle offline")
		}),
		Tracker: tr,
	}
	_, err = failing.Run(context.Background(), Request{Scope: ScopeTask, ID: "other"})
	assert.Error(t, err)
	_, ok = tr.Lookup(ScopeTask, "other")
	assert.False(t, ok, "oracle errors must not record a verdict")
}
