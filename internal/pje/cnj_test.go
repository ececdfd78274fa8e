package pje

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "bare digits",
			raw:  "00001234520235020001",
			want: "0000123-45.2023.5.02.0001",
		},
		{
			name: "already punctuated",
			raw:  "0000123-45.2023.5.02.0001",
			want: "0000123-45.2023.5.02.0001",
		},
		{
			name: "underscores tolerated",
			raw:  "0000123_45_2023_5_02_0001",
			want: "0000123-45.2023.5.02.0001",
		},
		{
			name:    "too few digits",
			raw:     "123456789",
			wantErr: true,
		},
		{
			name:    "too many digits",
			raw:     "000012345202350200012",
			wantErr: true,
		},
		{
			name:    "letters rejected",
			raw:     "0000123-45.2023.5.02.000a",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeNumber(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantRegion string
	}{
		{
			name:       "leading zero stripped",
			raw:        "00001234520235020001",
			wantRegion: "2",
		},
		{
			name:       "two significant digits kept",
			raw:        "00001234520235150001",
			wantRegion: "15",
		},
		{
			name:       "region zero-zero keeps single zero",
			raw:        "00001234520235000001",
			wantRegion: "0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			region, normalized, err := ExtractRegion(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.wantRegion, region)
			require.Regexp(t, cnjPattern, normalized)
		})
	}

	t.Run("invalid number propagates", func(t *testing.T) {
		t.Parallel()
		_, _, err := ExtractRegion("not-a-number")
		require.ErrorIs(t, err, ErrInvalidFormat)
	})
}
