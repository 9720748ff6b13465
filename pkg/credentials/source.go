package credentials

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// SecretSource looks up secret values by key.
type SecretSource interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads secrets from the process environment.
type EnvSource struct{}

// Lookup implements SecretSource.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource serves secrets from a fixed map.
type MapSource map[string]string

// Lookup implements SecretSource.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// DotenvSource layers a dotenv file over a fallback source. Values in the
// file win; keys missing from it fall through to the fallback.
type DotenvSource struct {
	values   map[string]string
	fallback SecretSource
}

// NewDotenvSource reads the dotenv file at path. A nil fallback means the
// process environment.
func NewDotenvSource(path string, fallback SecretSource) (*DotenvSource, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	if fallback == nil {
		fallback = EnvSource{}
	}
	return &DotenvSource{values: values, fallback: fallback}, nil
}

// Lookup implements SecretSource.
func (d *DotenvSource) Lookup(key string) (string, bool) {
	if v, ok := d.values[key]; ok {
		return v, true
	}
	return d.fallback.Lookup(key)
}
