// Package config loads service configuration from an optional file and
// environment variables into a typed struct.
//
// # Sources
//
// Load applies sources in increasing order of precedence:
//
//  1. Whatever the struct already holds. Callers start from a
//     DefaultConfig() value, so defaults live in Go code next to the type.
//  2. A YAML (.yaml, .yml) or JSON (.json) file set with [Loader.WithFile].
//     A missing file is not an error.
//  3. Environment variables named by `env:"NAME"` struct tags, decoded
//     with github.com/joeshaw/envdecode. Unset variables leave the field
//     untouched.
//
// After loading, fields tagged `required:"true"` must be non-zero and, if
// the struct implements [Validator], its Validate method is called.
//
//	cfg := app.DefaultConfig()
//	if err := config.New().WithFile("/etc/identity/config.yaml").Load(cfg); err != nil {
//	    return err
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Loader reads configuration into a struct. The zero value loads from the
// environment only.
type Loader struct {
	filePath string
}

// New returns a Loader with no file source.
func New() *Loader {
	return &Loader{}
}

// WithFile sets the configuration file. The format is chosen by extension.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct.
//
// Errors are *sserr.Error: CodeInternalConfiguration for unreadable or
// unparsable sources, CodeValidationRequired for a missing required field,
// and CodeValidation (or the validator's own code) for Validate failures.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"config: failed to decode environment variables")
	}

	return validate(cfg, rv.Elem())
}

// MustLoad loads into a copy of defaults and panics on failure. Intended
// for main packages where a broken configuration should stop the process.
func MustLoad[T any](loader *Loader, defaults T) T {
	cfg := defaults
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse file %q", l.filePath)
	}
	return nil
}
