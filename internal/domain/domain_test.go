package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	// Postgres TIME 列返回 HH:MM:SS
	tod, err = ParseTimeOfDay("17:05:00")
	require.NoError(t, err)
	assert.Equal(t, "17:05", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("24:01")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("")
	assert.Error(t, err)
}

func TestParseTimeOfDay_Midnight(t *testing.T) {
	for _, s := range []string{"24:00", "24:00:00"} {
		tod, err := ParseTimeOfDay(s)
		require.NoError(t, err)
		assert.Equal(t, EndOfDay, tod)
		assert.Equal(t, "24:00", tod.String())
	}

	tod, err := ParseTimeOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(0), tod)
}

func TestTimeOfDay_JSON(t *testing.T) {
	var payload struct {
		Start TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"10:15"}`), &payload))
	assert.Equal(t, MustTimeOfDay("10:15"), payload.Start)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"10:15"}`, string(out))
}

func TestNormalizeDate(t *testing.T) {
	d, err := NormalizeDate(" 2026-03-09 ")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", d)

	_, err = NormalizeDate("03/09/2026")
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{NewValidationError("row_span", "must be >= 1"), CodeValidation},
		{fmt.Errorf("place: %w", &OverlapError{LayoutID: "l1", RegionIDs: []string{"r1"}}), CodeOverlap},
		{&VersionConflictError{Entity: "region", ID: "r1", Expected: 1, Actual: 2}, CodeVersionConflict},
		{&SchedulingConflictError{JobID: "j1"}, CodeSchedulingConflict},
		{fmt.Errorf("job j9: %w", ErrNotFound), CodeNotFound},
		{errors.New("boom"), CodeInternal},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err))
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())

	_, ok := ParseSeverity("urgent")
	assert.False(t, ok)

	result := ConflictCheckResult{Conflicts: []Conflict{{Severity: SeverityMedium}, {Severity: SeverityHigh}}}
	assert.Equal(t, SeverityHigh, result.HighestSeverity())
}

func TestRegionPatch_Apply(t *testing.T) {
	r := &Region{RegionID: "r1", GridRow: 0, GridCol: 0, RowSpan: 1, ColSpan: 1}
	row, span := 3, 2
	RegionPatch{GridRow: &row, ColSpan: &span}.Apply(r)

	assert.Equal(t, 3, r.GridRow)
	assert.Equal(t, 0, r.GridCol)
	assert.Equal(t, 2, r.ColSpan)
	assert.True(t, RegionPatch{}.IsEmpty())
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusInProgress.IsActive())
	assert.True(t, JobStatusDispatched.IsActive())
	assert.False(t, JobStatusScheduled.IsActive())
	assert.False(t, JobStatusCancelled.Blocks())
	assert.True(t, JobStatusScheduled.Blocks())
	assert.False(t, JobStatus("paused").Valid())
}
