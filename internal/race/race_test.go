package race

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcoach/internal/domain"
)

func sleepArm(label string, delay time.Duration, out string, err error) Arm {
	return Arm{
		Label: label,
		Run: func(ctx context.Context) (string, error) {
			select {
			case <-time.After(delay):
				return out, err
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

func alwaysValid(string) bool { return true }
func alwaysInvalid(string) bool { return false }

func TestRace_FasterArmWinsWhenBothValid(t *testing.T) {
	// Mirrors the scenario where both arms eventually succeed but one
	// finishes well ahead of the other: the coordinator must not wait.
	fast := sleepArm("fast", 10*time.Millisecond, "fast-output", nil)
	slow := sleepArm("slow", 200*time.Millisecond, "slow-output", nil)

	start := time.Now()
	label, raw, err := Race(context.Background(), fast, slow, alwaysValid, 0, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "fast", label)
	assert.Equal(t, "fast-output", raw)
	assert.Less(t, elapsed, 100*time.Millisecond, "race must not wait for the slower arm")
}

func TestRace_OneArmFailsOtherValidates(t *testing.T) {
	failing := sleepArm("failing", 5*time.Millisecond, "", errors.New("boom"))
	ok := sleepArm("ok", 20*time.Millisecond, "good", nil)

	label, raw, err := Race(context.Background(), failing, ok, alwaysValid, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", label)
	assert.Equal(t, "good", raw)
}

func TestRace_BothArmsInvalid_ReturnsLastArmError(t *testing.T) {
	armA := sleepArm("armA", 5*time.Millisecond, "bad-a", nil)
	armB := sleepArm("armB", 20*time.Millisecond, "bad-b", nil)

	_, _, err := Race(context.Background(), armA, armB, alwaysInvalid, 0, nil)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindRaceBothArmsInvalid, kind)
}

func TestRace_BothArmsFail(t *testing.T) {
	armA := sleepArm("armA", 5*time.Millisecond, "", errors.New("a failed"))
	armB := sleepArm("armB", 10*time.Millisecond, "", errors.New("b failed"))

	_, _, err := Race(context.Background(), armA, armB, alwaysValid, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "armB")
}

func TestRace_PerArmTimeoutTreatedAsFailure(t *testing.T) {
	slowArm := sleepArm("slow", 100*time.Millisecond, "too-late", nil)
	fastArm := sleepArm("fast", 5*time.Millisecond, "on-time", nil)

	label, raw, err := Race(context.Background(), slowArm, fastArm, alwaysValid, 20*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", label)
	assert.Equal(t, "on-time", raw)
}

func TestRace_OutcomeReportsWinnerAndEventuallyTheLoser(t *testing.T) {
	fast := sleepArm("fast", 5*time.Millisecond, "fast-output", nil)
	slow := sleepArm("slow", 30*time.Millisecond, "slow-output", nil)

	var mu sync.Mutex
	var seen []string
	onOutcome := func(label, disposition string, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, label+":"+disposition)
	}

	label, _, err := Race(context.Background(), fast, slow, alwaysValid, 0, onOutcome)
	require.NoError(t, err)
	assert.Equal(t, "fast", label)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond, "loser outcome should arrive once its arm finishes")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "fast:winner")
	assert.Contains(t, seen, "slow:loser")
}

func TestRace_OverallDeadlineExpiresFailsRace(t *testing.T) {
	armA := sleepArm("armA", 100*time.Millisecond, "a", nil)
	armB := sleepArm("armB", 100*time.Millisecond, "b", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := Race(ctx, armA, armB, alwaysValid, 0, nil)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTimeout, kind)
}
