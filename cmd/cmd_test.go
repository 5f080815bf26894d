package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/qualtrics"
)

type fakePurger struct {
	dists     []qualtrics.Distribution
	deleted   []string
	deleteErr error
}

func (f *fakePurger) ListDistributions(context.Context, string) ([]qualtrics.Distribution, error) {
	return f.dists, nil
}

func (f *fakePurger) DeleteDistribution(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func testDistributions() []qualtrics.Distribution {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []qualtrics.Distribution{
		{ID: "EMD_1", RequestType: "GeneratedInvite", CreatedDate: created},
		{ID: "EMD_2", RequestType: "GeneratedInvite", CreatedDate: created},
	}
}

func TestPurgeDistributions(t *testing.T) {
	purger := &fakePurger{dists: testDistributions()}
	var out bytes.Buffer

	n, err := purgeDistributions(context.Background(), purger, "SV_1", false, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"EMD_1", "EMD_2"}, purger.deleted)
	assert.Contains(t, out.String(), "2 of 2 distributions deleted")
}

func TestPurgeDistributions_DryRun(t *testing.T) {
	purger := &fakePurger{dists: testDistributions()}
	var out bytes.Buffer

	n, err := purgeDistributions(context.Background(), purger, "SV_1", true, &out)
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Empty(t, purger.deleted)
	assert.Contains(t, out.String(), "would delete EMD_1 (GeneratedInvite, created 2026-03-01)")
}

func TestPurgeDistributions_StopsOnDeleteError(t *testing.T) {
	purger := &fakePurger{dists: testDistributions(), deleteErr: errors.New("403")}

	_, err := purgeDistributions(context.Background(), purger, "SV_1", false, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete distribution EMD_1")
}

func TestWarnStaleLinks(t *testing.T) {
	tests := []struct {
		name string
		pool personallinks.PoolID
		want string
	}{
		{name: "stored links left behind", pool: "cambridge_SV_a", want: "warning: 7 unassigned links of cambridge_SV_a"},
		{name: "empty pool", pool: "cambridge_SV_empty", want: ""},
		{name: "store failure", pool: "cambridge_SV_missing", want: "could not count stored links of cambridge_SV_missing"},
	}

	checker := fakeChecker{counts: map[personallinks.PoolID]int{
		"cambridge_SV_a":     7,
		"cambridge_SV_empty": 0,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			warnStaleLinks(context.Background(), checker, tt.pool, &out)

			if tt.want == "" {
				assert.Empty(t, out.String())
				return
			}
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

type fakeChecker struct {
	counts map[personallinks.PoolID]int
}

func (f fakeChecker) BufferLow(_ context.Context, pool personallinks.PoolID) (bool, int, error) {
	n, ok := f.counts[pool]
	if !ok {
		return false, 0, errors.New("store unavailable")
	}
	return n < f.Buffer(), n, nil
}

func (fakeChecker) Buffer() int { return 50 }

func TestRenderPoolStats(t *testing.T) {
	checker := fakeChecker{counts: map[personallinks.PoolID]int{
		"cambridge_SV_a": 72,
		"cambridge_SV_b": 3,
	}}
	var out bytes.Buffer

	err := renderPoolStats(context.Background(), checker, "cambridge", []string{"SV_a", "SV_b", "SV_c"}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "cambridge_SV_a")
	assert.Contains(t, text, "72")
	assert.Contains(t, text, "true")
	assert.Contains(t, text, "error: store unavailable")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "thiscovery-surveys version dev\n", out.String())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"serve"}, {"worker"}, {"migrate", "up"}, {"migrate", "down"},
		{"mint"}, {"purge"}, {"pools", "stats"}, {"version"},
	} {
		found, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}
