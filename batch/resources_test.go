package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/clpipe/errors"
)

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in   string
		want Memory
	}{
		{"5000", 5000},
		{"4000M", 4000},
		{"4000mb", 4000},
		{"16G", 16 * 1024},
		{"16GB", 16 * 1024},
		{" 2g ", 2048},
		{"1T", 1024 * 1024},
		{"512K", 1},
		{"2048K", 2},
		{"2049K", 3},
		{"8796093022207T", 8796093022207 * 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMemory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "G", "16X", "0", "0G", "-5G", "abc", "0K",
		"17592186044417T", "9007199254740992G", "99999999999999999999M"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseMemory(bad)
			assert.Error(t, err)
		})
	}
}

func TestMemoryString(t *testing.T) {
	assert.Equal(t, "16G", Memory(16384).String())
	assert.Equal(t, "5000M", Memory(5000).String())
	assert.Equal(t, int64(5), Memory(5000).Gigabytes())
}

func TestParseWallTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Minute},
		{"30:15", 30*time.Minute + 15*time.Second},
		{"1:00:00", time.Hour},
		{"10:00:00", 10 * time.Hour},
		{"2-00:00:00", 48 * time.Hour},
		{"1-12", 36 * time.Hour},
		{"1-02:30", 26*time.Hour + 30*time.Minute},
		{"90m", 90 * time.Minute},
		{"2h30m", 150 * time.Minute},
		{"106751-00:00:00", 106751 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWallTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "0", "00:00:00", "1:2:3:4", "x-01:00:00", "1:xx", "-5m",
		"106752-00:00:00", "9223372036854775807", "1-2562047788015216:00", "100000000000000000:00:00"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseWallTime(bad)
			assert.Error(t, err)
		})
	}
}

func TestNewResourceProfile(t *testing.T) {
	t.Run("builds a complete profile", func(t *testing.T) {
		p, err := NewResourceProfile("20000", "10:00:00", 12)
		require.NoError(t, err)
		require.NoError(t, p.Validate())
		assert.Equal(t, Memory(20000), *p.Memory)
		assert.Equal(t, 10*time.Hour, *p.WallTime)
		assert.Equal(t, 12, *p.Threads)
	})

	t.Run("reports every problem at once", func(t *testing.T) {
		_, err := NewResourceProfile("lots", "soon", 0)
		require.Error(t, err)

		var rpe *InvalidResourceProfileError
		require.True(t, errors.As(err, &rpe))
		assert.Len(t, rpe.Problems, 3)
		assert.True(t, errors.Is(err, ErrInvalidResourceProfile))
	})
}

func TestMerge(t *testing.T) {
	base, err := NewResourceProfile("5000", "1:00:00", 1)
	require.NoError(t, err)
	base = base.WithExtra("mail_user", "lab@example.edu")

	t.Run("empty override is identity", func(t *testing.T) {
		assert.Equal(t, base, Merge(base, ResourceProfile{}))
	})

	t.Run("merging twice is idempotent", func(t *testing.T) {
		override := ResourceProfile{}.WithThreads(8).WithExtra("SINGULARITY_BINDPATH", "/data")
		once := Merge(base, override)
		assert.Equal(t, once, Merge(once, override))
	})

	t.Run("set fields replace and unset fields inherit", func(t *testing.T) {
		override := ResourceProfile{}.WithMemory(16 * 1024).WithExtra("mail_user", "me@example.edu")
		got := Merge(base, override)

		assert.Equal(t, Memory(16*1024), *got.Memory)
		assert.Equal(t, *base.WallTime, *got.WallTime)
		assert.Equal(t, *base.Threads, *got.Threads)
		assert.Equal(t, "me@example.edu", got.Extras["mail_user"])
	})

	t.Run("does not alias inputs", func(t *testing.T) {
		got := Merge(base, ResourceProfile{}.WithThreads(4))
		*got.Memory = 1
		got.Extras["mail_user"] = "changed"

		assert.Equal(t, Memory(5000), *base.Memory)
		assert.Equal(t, "lab@example.edu", base.Extras["mail_user"])
	})
}

func TestResourceProfileValidate(t *testing.T) {
	t.Run("unset fields are rejected, not defaulted", func(t *testing.T) {
		err := ResourceProfile{}.Validate()
		require.Error(t, err)

		var rpe *InvalidResourceProfileError
		require.True(t, errors.As(err, &rpe))
		assert.Len(t, rpe.Problems, 3)
	})

	t.Run("zero threads", func(t *testing.T) {
		p, err := NewResourceProfile("5000", "1:00:00", 1)
		require.NoError(t, err)
		assert.Error(t, p.WithThreads(0).Validate())
	})

	t.Run("sub-second wall time", func(t *testing.T) {
		p, err := NewResourceProfile("5000", "1:00:00", 1)
		require.NoError(t, err)
		assert.Error(t, p.WithWallTime(time.Millisecond).Validate())
	})
}
