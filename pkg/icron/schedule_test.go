package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Daily(t *testing.T) {
	ref := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 6 * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 3*time.Hour+30*time.Minute, info.TimeSinceLast)
	assert.Equal(t, 20*time.Hour+30*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_PicksLatestFireInWindow(t *testing.T) {
	ref := time.Date(2026, 3, 14, 9, 47, 0, 0, time.UTC)

	info, err := GetTriggerInfo("*/10 * * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 14, 9, 40, 0, 0, time.UTC), info.Last)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 50, 0, 0, time.UTC), info.Next)
}

func TestGetTriggerInfo_Descriptor(t *testing.T) {
	ref := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	info, err := GetTriggerInfo("@daily", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("0 0 6 * * *", time.Now())
	assert.Error(t, err)

	_, err = GetTriggerInfo("often", time.Now())
	assert.Error(t, err)
}
