package purge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFrame(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		all     bool
		wantErr bool
	}{
		{input: "1h", want: time.Hour},
		{input: "24h", want: 24 * time.Hour},
		{input: "2d", want: 48 * time.Hour},
		{input: "1w", want: 7 * 24 * time.Hour},
		{input: "3m", want: 90 * 24 * time.Hour},
		{input: "all", all: true},
		{input: " all ", all: true},
		{input: "", wantErr: true},
		{input: "h", wantErr: true},
		{input: "0h", wantErr: true},
		{input: "-1h", wantErr: true},
		{input: "5y", wantErr: true},
		{input: "5", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, all, err := ParseTimeFrame(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.all, all)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSpecificDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "iso date",
			input: "2024-01-15",
			want:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "iso datetime",
			input: "2024-01-15T10:30:00Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "iso datetime without zone",
			input: "2024-01-15T10:30:00",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "unix seconds",
			input: "1705314600",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "unix milliseconds",
			input: "1705314600000",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "just below threshold reads as seconds",
			input: "978307199",
			want:  time.Date(2000, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:  "threshold reads as milliseconds",
			input: "978307200000",
			want:  time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpecificDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}
}
