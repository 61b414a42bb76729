package config

import (
	"fmt"
	"reflect"
	"strings"
)

// Validators take a dotted Go field path ("Server.Workers") and report
// problems under the file's spelling of it ("server.workers").

// field resolves path in config and returns the value together with its
// yaml-tag name.
func field(config interface{}, path string) (reflect.Value, string, error) {
	v := reflect.ValueOf(config)
	names := make([]string, 0, strings.Count(path, ".")+1)
	for _, part := range strings.Split(path, ".") {
		v = reflect.Indirect(v)
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, "", fmt.Errorf("config: %s does not name a struct field", path)
		}
		sf, ok := v.Type().FieldByName(part)
		if !ok {
			return reflect.Value{}, "", fmt.Errorf("config: no field %s", path)
		}
		names = append(names, strings.ToLower(envName(sf)))
		v = v.FieldByIndex(sf.Index)
	}
	return v, strings.Join(names, "."), nil
}

func number(v reflect.Value) (float64, bool) {
	switch {
	case v.CanInt():
		return float64(v.Int()), true
	case v.CanUint():
		return float64(v.Uint()), true
	case v.CanFloat():
		return v.Float(), true
	}
	return 0, false
}

// RequiredFields fails when any of the fields holds its zero value.
// All missing fields are reported at once.
func RequiredFields(paths ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		var missing []string
		for _, path := range paths {
			v, name, err := field(config, path)
			if err != nil {
				return err
			}
			if v.IsZero() {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("config: %s required", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator fails unless the numeric field lies in [min, max].
// Duration fields compare in nanoseconds.
func RangeValidator(path string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, name, err := field(config, path)
		if err != nil {
			return err
		}
		n, ok := number(v)
		if !ok {
			return fmt.Errorf("config: %s is not numeric", name)
		}
		if n < min || n > max {
			return fmt.Errorf("config: %s = %v is outside [%g, %g]", name, v.Interface(), min, max)
		}
		return nil
	})
}

// OneOfValidator fails unless the string field equals one of allowed.
func OneOfValidator(path string, allowed ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, name, err := field(config, path)
		if err != nil {
			return err
		}
		if v.Kind() != reflect.String {
			return fmt.Errorf("config: %s is not a string", name)
		}
		for _, a := range allowed {
			if v.String() == a {
				return nil
			}
		}
		return fmt.Errorf("config: %s = %q, want one of %s", name, v.String(), strings.Join(allowed, ", "))
	})
}
