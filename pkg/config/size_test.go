package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataSize(t *testing.T) {
	tests := []struct {
		input    string
		expected DataSize
		wantErr  bool
	}{
		{"0", 0, false},
		{"1024", 1024, false},
		{"100B", 100, false},
		{"1KB", 1000, false},
		{"1K", 1024, false},
		{"1.5KiB", 1536, false},
		{"64MB", 64000000, false},
		{"64MiB", 64 * MiB, false},
		{"1 G", GiB, false},
		{"2gib", 2 * GiB, false},

		{"", 0, true},
		{"-5", 0, true},
		{"MB", 0, true},
		{"10XB", 0, true},
		{"1.2.3MB", 0, true},
		{"99999999999GiB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDataSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDataSize_String(t *testing.T) {
	assert.Equal(t, "512B", DataSize(512).String())
	assert.Equal(t, "1KiB", KiB.String())
	assert.Equal(t, "1.5MiB", (MiB + MiB/2).String())
	assert.Equal(t, "64MiB", (64 * MiB).String())
	assert.Equal(t, "2GiB", (2 * GiB).String())
}

func TestDataSize_JSON(t *testing.T) {
	var cfg BadgerConfig
	require.NoError(t, json.Unmarshal([]byte(`{"dir": "/tmp/x", "cache_size": "32MiB"}`), &cfg))
	assert.Equal(t, 32*MiB, cfg.CacheSize)

	require.NoError(t, json.Unmarshal([]byte(`{"cache_size": 4096}`), &cfg))
	assert.Equal(t, 4*KiB, cfg.CacheSize)

	assert.Error(t, json.Unmarshal([]byte(`{"cache_size": true}`), &cfg))
	assert.Error(t, json.Unmarshal([]byte(`{"cache_size": "lots"}`), &cfg))
	assert.Error(t, json.Unmarshal([]byte(`{"cache_size": 1e30}`), &cfg))

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dir": "/tmp/x", "cache_size": "4KiB"}`, string(out))
}
