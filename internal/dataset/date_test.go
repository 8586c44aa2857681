package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2019-05-21", time.Date(2019, 5, 21, 0, 0, 0, 0, time.UTC), true},
		{" 2019-05-21 ", time.Date(2019, 5, 21, 0, 0, 0, 0, time.UTC), true},
		{"2019-05-21 10:30:00", time.Date(2019, 5, 21, 10, 30, 0, 0, time.UTC), true},
		{"2019-05-21T10:30:00Z", time.Date(2019, 5, 21, 10, 30, 0, 0, time.UTC), true},
		{"2019/05/21", time.Date(2019, 5, 21, 0, 0, 0, 0, time.UTC), true},
		{"05/21/2019", time.Date(2019, 5, 21, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"2019-13-45", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2019-05-21", FormatDate(time.Date(2019, 5, 21, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2019-05-21 10:30:00", FormatDate(time.Date(2019, 5, 21, 10, 30, 0, 0, time.UTC)))
}

func TestFormatDate_KeepsSourceOffsetDay(t *testing.T) {
	parsed, ok := ParseDate("2019-05-21T00:30:00+02:00")
	assert.True(t, ok)
	assert.Equal(t, "2019-05-21 00:30:00", FormatDate(parsed))

	midnight, ok := ParseDate("2019-05-21T00:00:00-05:00")
	assert.True(t, ok)
	assert.Equal(t, "2019-05-21", FormatDate(midnight))
}
