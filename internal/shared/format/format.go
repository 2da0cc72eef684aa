// Package format decodes shell configuration and manifest documents.
//
// JSON is the native format of manifests and config files; YAML and TOML
// are accepted when the source name carries a matching extension.
package format

import (
	"fmt"
	"path"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies a document encoding
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// FromName picks a format from a file name or URL. Unknown or missing
// extensions are treated as JSON.
func FromName(name string) Format {
	// Strip query strings so "manifest.yaml?v=2" still resolves.
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	default:
		return JSON
	}
}

// Decode unmarshals data into v using the format implied by name
func Decode(data []byte, name string, v interface{}) error {
	return DecodeAs(data, FromName(name), v)
}

// DecodeAs unmarshals data into v using an explicit format
func DecodeAs(data []byte, f Format, v interface{}) error {
	var err error
	switch f {
	case YAML:
		err = yaml.Unmarshal(data, v)
	case TOML:
		err = toml.Unmarshal(data, v)
	default:
		err = sonic.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", f, err)
	}
	return nil
}

// Marshal encodes v as JSON
func Marshal(v interface{}) ([]byte, error) {
	return sonic.Marshal(v)
}
