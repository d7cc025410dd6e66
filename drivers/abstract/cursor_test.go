package abstract

import (
	"testing"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	startDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runNow    = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
)

func TestDatetimeCursorBounds(t *testing.T) {
	cursor := &DatetimeCursor{FieldName: "updated_at", StartDate: startDate}

	t.Run("no checkpoint starts at start date", func(t *testing.T) {
		bounds, err := cursor.Bounds(nil, runNow)
		require.NoError(t, err)
		assert.Equal(t, startDate, bounds.Start)
		assert.Equal(t, runNow, bounds.End)
	})

	t.Run("checkpoint is exclusive", func(t *testing.T) {
		checkpoint := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
		bounds, err := cursor.Bounds(checkpoint, runNow)
		require.NoError(t, err)
		assert.Equal(t, checkpoint.Add(time.Second), bounds.Start)
	})

	t.Run("start date wins over older checkpoint", func(t *testing.T) {
		bounds, err := cursor.Bounds(startDate.AddDate(-1, 0, 0), runNow)
		require.NoError(t, err)
		assert.Equal(t, startDate, bounds.Start)
	})

	t.Run("granularity", func(t *testing.T) {
		daily := &DatetimeCursor{FieldName: "date", StartDate: startDate, Granularity: 24 * time.Hour}
		bounds, err := daily.Bounds(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), runNow)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bounds.Start)
	})

	t.Run("unsupported checkpoint", func(t *testing.T) {
		_, err := cursor.Bounds("yesterday", runNow)
		assert.ErrorIs(t, err, constants.ErrUnsupportedCursor)
	})
}

func TestDatetimeCursorSlices(t *testing.T) {
	cursor := &DatetimeCursor{FieldName: "updated_at", StartDate: startDate, Granularity: 24 * time.Hour, Step: 4 * 24 * time.Hour}
	slices := cursor.Slices(&Slice{Start: startDate, End: runNow})
	require.Len(t, slices, 3)

	assert.Equal(t, startDate, slices[0].Start)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), slices[0].End)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), slices[1].Start)
	assert.Equal(t, runNow, slices[2].End)

	// slices never overlap and cover the window
	for idx := 1; idx < len(slices); idx++ {
		prevEnd := slices[idx-1].End.(time.Time)
		assert.Equal(t, prevEnd.Add(24*time.Hour), slices[idx].Start)
	}

	assert.Nil(t, cursor.Slices(&Slice{Start: runNow.Add(time.Hour), End: runNow}))

	whole := (&DatetimeCursor{FieldName: "updated_at"}).Slices(&Slice{Start: startDate, End: runNow})
	assert.Len(t, whole, 1)
}

func TestDatetimeCursorFormat(t *testing.T) {
	moment := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05Z", (&DatetimeCursor{}).Format(moment))
	assert.Equal(t, moment.Unix(), (&DatetimeCursor{ValueFormat: constants.UnixTimestampFormat}).Format(moment))
	assert.Equal(t, moment.UnixMilli(), (&DatetimeCursor{ValueFormat: constants.UnixMilliFormat}).Format(moment))
}

func TestLookupField(t *testing.T) {
	data := map[string]any{
		"updated_at": "a",
		"meta":       map[string]any{"modified": "b"},
		"flat.key":   "c",
	}

	value, found := lookupField(data, "updated_at")
	assert.True(t, found)
	assert.Equal(t, "a", value)

	value, found = lookupField(data, "meta.modified")
	assert.True(t, found)
	assert.Equal(t, "b", value)

	value, found = lookupField(data, "flat.key")
	assert.True(t, found)
	assert.Equal(t, "c", value)

	_, found = lookupField(data, "meta.missing")
	assert.False(t, found)
}

func TestCursorTracker(t *testing.T) {
	cursor := &DatetimeCursor{FieldName: "updated_at", StartDate: startDate}
	prev := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	bounds, err := cursor.Bounds(prev, runNow)
	require.NoError(t, err)
	tracker := newCursorTracker(cursor, "", prev, bounds)

	admit := func(value any, deleted bool) bool {
		record := types.NewRecord("users", map[string]any{"updated_at": value})
		record.IsDeletion = deleted
		ok, err := tracker.admit(&record)
		require.NoError(t, err)
		if ok && value != nil {
			assert.NotNil(t, record.CursorValue)
		}
		return ok
	}

	assert.False(t, admit("2024-01-05T00:00:00Z", false), "checkpoint value is not replayed")
	assert.False(t, admit("2024-01-04T00:00:00Z", false))
	assert.True(t, admit("2024-01-06T00:00:00Z", false))
	assert.True(t, admit("2024-01-08T00:00:00Z", true), "deletions advance the cursor")
	assert.True(t, admit("2024-01-07T00:00:00Z", false))
	assert.True(t, admit(nil, false), "records without cursor are delivered")
	assert.Equal(t, 2, tracker.dropped)

	assert.Equal(t, types.Checkpoint{"updated_at": "2024-01-08T00:00:00Z"}, tracker.checkpoint())

	record := types.NewRecord("users", map[string]any{"updated_at": "not a date"})
	_, err = tracker.admit(&record)
	assert.ErrorIs(t, err, constants.ErrUnsupportedCursor)
}

func TestCursorTrackerWithoutRecords(t *testing.T) {
	cursor := &DatetimeCursor{FieldName: "updated_at", StartDate: startDate}

	empty := newCursorTracker(cursor, "", nil, &Slice{Start: startDate, End: runNow})
	assert.Nil(t, empty.checkpoint())

	prev := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	kept := newCursorTracker(cursor, "", prev, &Slice{Start: prev.Add(time.Second), End: runNow})
	assert.Equal(t, types.Checkpoint{"updated_at": "2024-01-05T00:00:00Z"}, kept.checkpoint())
}
