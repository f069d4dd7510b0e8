package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/apify"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

func TestRunnerSucceeds(t *testing.T) {
	p := newScriptedProvider()
	p.statuses["alice"] = []apify.RunStatus{apify.StatusReady, apify.StatusRunning, apify.StatusSucceeded}
	p.posts["alice"] = makePosts("alice", 3)

	r := NewRunner(p, time.Millisecond, time.Second, nil, logger.NewTestLogger())
	posts, err := r.Run(context.Background(), "alice")

	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, 3, p.calls["alice"])
}

func TestRunnerTerminalFailures(t *testing.T) {
	for _, status := range []apify.RunStatus{apify.StatusFailed, apify.StatusAborted, apify.StatusTimedOut} {
		t.Run(string(status), func(t *testing.T) {
			p := newScriptedProvider()
			p.statuses["bob"] = []apify.RunStatus{apify.StatusRunning, status}

			r := NewRunner(p, time.Millisecond, time.Second, nil, logger.NewTestLogger())
			_, err := r.Run(context.Background(), "bob")

			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrorTypeProviderRun))
			assert.Equal(t, "Apify actor run failed with status: "+string(status), err.Error())
		})
	}
}

func TestRunnerStartFailure(t *testing.T) {
	p := newScriptedProvider()
	p.startErr["carol"] = errs.ProviderStart("Failed to start Apify actor")

	r := NewRunner(p, time.Millisecond, time.Second, nil, logger.NewTestLogger())
	_, err := r.Run(context.Background(), "carol")

	assert.True(t, errs.Is(err, errs.ErrorTypeProviderStart))
	assert.Empty(t, p.calls)
}

func TestRunnerTimeout(t *testing.T) {
	p := newScriptedProvider()
	p.statuses["dave"] = []apify.RunStatus{apify.StatusRunning}

	r := NewRunner(p, 2*time.Millisecond, 20*time.Millisecond, nil, logger.NewTestLogger())
	_, err := r.Run(context.Background(), "dave")

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeTimeout))
}

func TestRunnerHonorsCancellation(t *testing.T) {
	p := newScriptedProvider()
	p.statuses["erin"] = []apify.RunStatus{apify.StatusRunning}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewRunner(p, 2*time.Millisecond, 0, nil, logger.NewTestLogger())
	_, err := r.Run(ctx, "erin")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errs.Is(err, errs.ErrorTypeTimeout))
}
