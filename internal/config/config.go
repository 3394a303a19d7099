package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` tag when reading overrides.
const EnvPrefix = "CAMNODE_"

// binding ties one Options field to its flag, file key and env variable.
type binding struct {
	field reflect.Value
	flag  string
	toml  string
	env   string
}

func bindings(v reflect.Value) []binding {
	t := v.Type()
	out := make([]binding, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out = append(out, binding{
			field: v.Field(i),
			flag:  fieldNameToFlag(f.Name),
			toml:  f.Tag.Get("toml"),
			env:   f.Tag.Get("env"),
		})
	}
	return out
}

// LoadConfig fills opts, a pointer to a flat Options struct, from the TOML
// file named by its Config field and from CAMNODE_* environment variables.
// Precedence is CLI flag > env > file > default: fields whose flag was set
// on cmd are left alone. A missing file is not an error. Values of the wrong
// type are reported but do not stop the remaining fields from loading.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: want pointer to struct, got %T", opts)
	}
	v = v.Elem()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	}

	var file map[string]any
	if cf := v.FieldByName("Config"); cf.IsValid() && cf.Kind() == reflect.String && cf.String() != "" {
		data, err := os.ReadFile(cf.String())
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
		}
	}

	var errs []error
	for _, b := range bindings(v) {
		if changed[b.flag] {
			continue
		}
		if b.toml != "" {
			if raw, ok := lookup(file, b.toml); ok {
				if err := assign(b.field, raw); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", b.toml, err))
				}
			}
		}
		if b.env != "" {
			if raw := os.Getenv(EnvPrefix + b.env); raw != "" {
				if err := assignString(b.field, raw); err != nil {
					errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.env, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// fieldNameToFlag converts a field name to the kebab-case flag humacli
// registers for it: "LoggingLevel" -> "logging-level", "CameraID" -> "camera-id".
func fieldNameToFlag(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted key such as "camera.frame_rate" in a decoded file.
func lookup(data map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := data[part].(map[string]any)
		if !ok {
			return nil, false
		}
		data = next
	}
	v, ok := data[parts[len(parts)-1]]
	return v, ok
}

// assign stores a decoded TOML value into field.
func assign(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}
	mismatch := fmt.Errorf("cannot use %T as %s", value, field.Type())

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return mismatch
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return mismatch
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, ok := value.(int64)
		if !ok {
			return mismatch
		}
		field.SetInt(i)
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		default:
			return mismatch
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return mismatch
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return mismatch
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return mismatch
	}
	return nil
}

// assignString parses an environment value into field. String slices are
// comma separated.
func assignString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// LoadLoggingConfig loads the [logging] section of a TOML config file.
// Returns default config if the file doesn't exist or can't be parsed.
// Module levels may be given either in a [logging.modules] table or as
// extra keys directly under [logging].
func LoadLoggingConfig(configPath string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	var rawConfig struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &rawConfig); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	for key, value := range rawConfig.Logging {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}

	return cfg, nil
}
