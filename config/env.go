package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"badgekit/core"
)

// envDecoder parses one raw environment value into a settable field.
type envDecoder func(raw string, field reflect.Value) error

// typedDecoders take precedence over kind-based decoding.
var typedDecoders = map[reflect.Type]envDecoder{
	reflect.TypeFor[time.Duration]():    decodeDuration,
	reflect.TypeFor[[]core.EventType](): decodeEventTypes,
}

type envField struct {
	name  string
	value reflect.Value
}

// loadFromEnv overlays BADGEKIT_* variables onto cfg. Every malformed
// variable is reported, not only the first.
func loadFromEnv(cfg *Config) error {
	var errs []error
	for _, f := range envFields(reflect.ValueOf(cfg).Elem()) {
		raw, ok := os.LookupEnv(f.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := decodeEnv(raw, f.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	return errors.Join(errs...)
}

// envFields flattens the env-tagged fields of v, descending into sections.
func envFields(v reflect.Value) []envField {
	var out []envField
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !sf.IsExported() {
			continue
		}
		if name := sf.Tag.Get("env"); name != "" {
			out = append(out, envField{name: name, value: fv})
			continue
		}
		if fv.Kind() == reflect.Struct {
			out = append(out, envFields(fv)...)
		}
	}
	return out
}

func decodeEnv(raw string, v reflect.Value) error {
	if dec, ok := typedDecoders[v.Type()]; ok {
		return dec(raw, v)
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(raw))
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		v.SetInt(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", v.Type())
		}
		items := splitList(raw)
		list := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, item := range items {
			list.Index(i).SetString(item)
		}
		v.Set(list)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String || v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map type %s", v.Type())
		}
		return decodePairs(raw, v)
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}

// decodeDuration accepts Go duration syntax or a bare count of seconds.
func decodeDuration(raw string, v reflect.Value) error {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		v.SetInt(int64(time.Duration(secs) * time.Second))
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	v.SetInt(int64(d))
	return nil
}

// decodeEventTypes rejects names the engine never publishes.
func decodeEventTypes(raw string, v reflect.Value) error {
	var (
		types []core.EventType
		errs  []error
	)
	for _, item := range splitList(raw) {
		t, err := core.ParseEventType(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		types = append(types, t)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	v.Set(reflect.ValueOf(types))
	return nil
}

// decodePairs reads key=value,key2=value2.
func decodePairs(raw string, v reflect.Value) error {
	m := reflect.MakeMap(v.Type())
	for _, item := range splitList(raw) {
		key, val, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid pair %q", item)
		}
		m.SetMapIndex(reflect.ValueOf(key).Convert(v.Type().Key()), reflect.ValueOf(strings.TrimSpace(val)).Convert(v.Type().Elem()))
	}
	v.Set(m)
	return nil
}

// splitList splits a comma list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
