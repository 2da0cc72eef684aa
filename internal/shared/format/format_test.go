package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Count int      `json:"count" yaml:"count" toml:"count"`
	Tags  []string `json:"tags" yaml:"tags" toml:"tags"`
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"manifest.json", JSON},
		{"config/system.yaml", YAML},
		{"config/system.YML", YAML},
		{"apps/music/manifest.toml", TOML},
		{"https://example.com/apps/music/manifest.yaml?v=2", YAML},
		{"manifest", JSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromName(tt.name))
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"json", "a.json", `{"name":"music","count":2,"tags":["audio","player"]}`},
		{"yaml", "a.yaml", "name: music\ncount: 2\ntags:\n  - audio\n  - player\n"},
		{"toml", "a.toml", "name = \"music\"\ncount = 2\ntags = [\"audio\", \"player\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d doc
			require.NoError(t, Decode([]byte(tt.data), tt.file, &d))
			assert.Equal(t, "music", d.Name)
			assert.Equal(t, 2, d.Count)
			assert.Equal(t, []string{"audio", "player"}, d.Tags)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	var d doc
	err := Decode([]byte("{not json"), "broken.json", &d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json")
}
