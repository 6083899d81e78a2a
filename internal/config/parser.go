package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v2"
)

// envPrefix is the environment variable prefix used for overrides:
// Configuration.Abc may be replaced by KRANGLER_ABC, Configuration.Abc.Xyz
// by KRANGLER_ABC_XYZ, and so forth, exactly as the teacher's parser does
// for its own REGISTRY_ prefix.
const envPrefix = "KRANGLER"

// Parse parses a YAML configuration document, applies defaults for unset
// fields, overlays environment variable overrides, and validates the
// result.
//
// Unlike the teacher's configuration.Parse, there is only one
// configuration format version so far, so there's no VersionedParseInfo
// migration table here — that machinery earns its keep only once a second
// version exists to convert from.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	c := defaults()
	if err := yaml.Unmarshal(in, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := overwriteFromEnv(reflect.ValueOf(&c).Elem(), envPrefix, environ()); err != nil {
		return nil, fmt.Errorf("config: env override: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		env[parts[0]] = parts[1]
	}
	return env
}

// overwriteFromEnv recursively overlays struct fields with values found in
// env under prefix, following the same PREFIX_FIELD_SUBFIELD convention as
// the teacher's Parser.overwriteFields (minus its map-field handling,
// since Configuration has no Parameters-style maps to walk).
func overwriteFromEnv(v reflect.Value, prefix string, env map[string]string) error {
	for v.Kind() == reflect.Ptr {
		v = reflect.Indirect(v)
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		sf := v.Type().Field(i)
		fieldPrefix := strings.ToUpper(prefix + "_" + sf.Name)
		if e, ok := env[fieldPrefix]; ok {
			fieldVal := reflect.New(sf.Type)
			if err := yaml.Unmarshal([]byte(e), fieldVal.Interface()); err != nil {
				return fmt.Errorf("%s: %w", fieldPrefix, err)
			}
			v.Field(i).Set(reflect.Indirect(fieldVal))
		}
		if err := overwriteFromEnv(v.Field(i), fieldPrefix, env); err != nil {
			return err
		}
	}
	return nil
}
