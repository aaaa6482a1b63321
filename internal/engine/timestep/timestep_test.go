package timestep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcore/pkg/apperror"
)

func TestGenerate_DailySteps(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC)

	steps, err := Generate(start, end, 1)
	require.NoError(t, err)
	require.Len(t, steps, 14)
	assert.Equal(t, 0, steps[0].Ordinal)
	assert.Equal(t, start, steps[0].Date)
	assert.Equal(t, 13, steps[13].Ordinal)
	assert.Equal(t, end, steps[13].Date)
	assert.Equal(t, 1.0, steps[0].StepDays)
}

func TestGenerate_RejectsNonPositiveStep(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := Generate(start, start, 0)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindBuild, appErr.Kind)
}

func TestGenerate_RejectsEndBeforeStart(t *testing.T) {
	start := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := Generate(start, end, 1)
	require.Error(t, err)
}

func TestEnumerate_RowMajorOrder(t *testing.T) {
	groups := []Group{{Name: "a", Size: 2}, {Name: "b", Size: 3}}
	scenarios, err := Enumerate(groups)
	require.NoError(t, err)
	require.Len(t, scenarios, 6)

	// Earlier group ("a") varies slowest.
	assert.Equal(t, []int{0, 0}, scenarios[0].Indices)
	assert.Equal(t, []int{0, 1}, scenarios[1].Indices)
	assert.Equal(t, []int{0, 2}, scenarios[2].Indices)
	assert.Equal(t, []int{1, 0}, scenarios[3].Indices)
	assert.Equal(t, []int{1, 2}, scenarios[5].Indices)
	for i, s := range scenarios {
		assert.Equal(t, i, s.Flat)
	}
}

func TestEnumerate_NoGroupsYieldsSingleScenario(t *testing.T) {
	scenarios, err := Enumerate(nil)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, 0, scenarios[0].Flat)
}

func TestEnumerate_RejectsZeroSizeGroup(t *testing.T) {
	_, err := Enumerate([]Group{{Name: "empty", Size: 0}})
	require.Error(t, err)
}

func TestNumScenarios(t *testing.T) {
	groups := []Group{{Name: "a", Size: 2}, {Name: "b", Size: 3}, {Name: "c", Size: 4}}
	assert.Equal(t, 24, NumScenarios(groups))
}
