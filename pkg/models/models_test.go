package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatermarkCompare(t *testing.T) {
	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)

	tests := []struct {
		name string
		a, b Watermark
		want int
	}{
		{"earlier timestamp", Watermark{UpdatedAt: t1, ID: "z"}, Watermark{UpdatedAt: t2, ID: "a"}, -1},
		{"later timestamp", Watermark{UpdatedAt: t2, ID: "a"}, Watermark{UpdatedAt: t1, ID: "z"}, 1},
		{"same timestamp lower id", Watermark{UpdatedAt: t1, ID: "a"}, Watermark{UpdatedAt: t1, ID: "b"}, -1},
		{"same timestamp higher id", Watermark{UpdatedAt: t1, ID: "b"}, Watermark{UpdatedAt: t1, ID: "a"}, 1},
		{"equal", Watermark{UpdatedAt: t1, ID: "a"}, Watermark{UpdatedAt: t1, ID: "a"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestWatermarkIsZero(t *testing.T) {
	assert.True(t, Watermark{}.IsZero())
	assert.False(t, Watermark{ID: "x"}.IsZero())
	assert.False(t, Watermark{UpdatedAt: time.Unix(1, 0)}.IsZero())
}

func TestBatchMaxCursor(t *testing.T) {
	assert.True(t, Batch{}.Empty())
	assert.Equal(t, Watermark{}, Batch{}.MaxCursor())

	batch := Batch{Sources: []SourceRow{
		{Cursor: Watermark{UpdatedAt: time.Unix(1, 0), ID: "a"}},
		{Cursor: Watermark{UpdatedAt: time.Unix(2, 0), ID: "b"}},
	}}
	assert.False(t, batch.Empty())
	assert.Equal(t, "b", batch.MaxCursor().ID)
}

func TestLoadResultMerge(t *testing.T) {
	first := NewLoadResult()
	first.Failed["m1"] = "rejected"
	first.Succeeded["m2"] = struct{}{}

	retry := NewLoadResult()
	retry.Succeeded["m1"] = struct{}{}
	retry.Failed["m3"] = "rejected"

	first.Merge(retry)

	assert.Contains(t, first.Succeeded, "m1")
	assert.NotContains(t, first.Failed, "m1", "a retried success clears the earlier failure")
	assert.Contains(t, first.Succeeded, "m2")
	assert.Contains(t, first.Failed, "m3")
}

func TestLoadResultMergeSuccessWins(t *testing.T) {
	first := NewLoadResult()
	first.Succeeded["m1"] = struct{}{}

	late := NewLoadResult()
	late.Failed["m1"] = "stale rejection"

	first.Merge(late)
	assert.NotContains(t, first.Failed, "m1")
}
