package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadConfig builds the configuration in layers: defaults, then the YAML document (after
// environment placeholder expansion), then BULKLOAD_* environment variable overrides.
// The .env file at envFilePath, if present, is loaded into the process environment first.
func LoadConfig(envFilePath string, raw EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, raw, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, raw EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	if len(raw) > 0 {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to expand environment placeholders", err)
		}
		// Keys absent from the document keep their defaults.
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to unmarshal config", err)
		}
		if cfg.Bulkload.AdapterConfigs == nil {
			cfg.Bulkload.AdapterConfigs = map[string]interface{}{}
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to load config from environment variables", err)
	}
	return cfg, nil
}

// ApplyLogging configures the package logger from cfg.
func ApplyLogging(cfg *Config) {
	logging := cfg.Bulkload.System.Logging
	logger.SetLogLevel(logging.Level)
	if err := logger.SetEncoding(logging.Encoding); err != nil {
		logger.Warnf("%v; keeping console encoding", err)
	}
	logger.Debugf("Log level set to: %s", logging.Level)
}

// tableName accepts a plain or schema-qualified SQL identifier.
var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateIngest checks the settings an ingestion run depends on.
func (c *Config) ValidateIngest() error {
	in := c.Bulkload.Ingest
	switch {
	case in.Dataset == "":
		return exception.NewBatchError(moduleName, exception.KindConfig, "ingest.dataset is required", nil)
	case in.BatchSize <= 0:
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "ingest.batch_size must be positive, got %d", in.BatchSize)
	case in.Workers <= 0:
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "ingest.workers must be positive, got %d", in.Workers)
	case in.Table == "":
		return exception.NewBatchError(moduleName, exception.KindConfig, "ingest.table is required", nil)
	case !tableName.MatchString(in.Table):
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "ingest.table %q is not a valid table name", in.Table)
	}
	if _, ok := c.Bulkload.AdapterConfigs[in.TargetDBRef]; !ok {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "database %q referenced by ingest.target_db_ref is not configured", in.TargetDBRef)
	}
	return nil
}

// ValidateServer checks the settings the API server depends on.
func (c *Config) ValidateServer() error {
	s := c.Bulkload.Server
	if s.Addr == "" {
		return exception.NewBatchError(moduleName, exception.KindConfig, "server.addr is required", nil)
	}
	if s.BulkInsertBatchSize <= 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "server.bulk_insert_batch_size must be positive, got %d", s.BulkInsertBatchSize)
	}
	if _, ok := c.Bulkload.AdapterConfigs[s.TargetDBRef]; !ok {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "database %q referenced by server.target_db_ref is not configured", s.TargetDBRef)
	}
	return nil
}

// loadStructFromEnv walks val using yaml tags to derive variable names:
// bulkload.ingest.batch_size is overridden by BULKLOAD_INGEST_BATCH_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String &&
			field.Type().Elem().Kind() == reflect.Interface:
			loadAdapterConfigsFromEnv(field, envVarName+"_")
		default:
			envValue, exists := os.LookupEnv(envVarName)
			if !exists {
				continue
			}
			if err := setField(field, envValue); err != nil {
				return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
			}
		}
	}
	return nil
}

// loadAdapterConfigsFromEnv applies variables like BULKLOAD_DATABASE_WORKLOAD_HOST=db to the
// "workload" entry of a map[string]interface{}. The first segment after the prefix is the
// entry name; the rest, lower-cased, is the key. Values stay strings and are converted when
// the entry is decoded.
func loadAdapterConfigsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndField, value, ok := strings.Cut(strings.TrimPrefix(env, prefix), "=")
		if !ok {
			continue
		}
		name, key, ok := strings.Cut(keyAndField, "_")
		if !ok || name == "" || key == "" {
			continue
		}
		name = strings.ToLower(name)
		key = strings.ToLower(key)

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(name)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[key] = value
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(entry))
	}
}

// setField sets a string, integer, float or bool field from its textual form.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
