package config

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/mitchellh/mapstructure"
)

var targetPathType = reflect.TypeOf(models.TargetPath{})

// targetPathHook turns scalar, list or null document values into a TargetPath.
func targetPathHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != targetPathType {
		return data, nil
	}
	return models.ParseTargetPath(data)
}

// decodeStrict decodes raw into result without type coercion and returns
// the keys of raw that have no matching field.
func decodeStrict(raw map[string]interface{}, result interface{}) ([]string, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: targetPathHook,
		Metadata:   &md,
		Result:     result,
		TagName:    "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return md.Unused, err
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}

func decodeItem(raw map[string]interface{}) (models.ConfigItem, []string, error) {
	var item models.ConfigItem
	unused, err := decodeStrict(raw, &item)
	return item, unused, err
}

func decodeGlobal(raw map[string]interface{}, base models.GlobalConfig) (models.GlobalConfig, []string, error) {
	cfg := base
	unused, err := decodeStrict(raw, &cfg)
	return cfg, unused, err
}

// missingKeys returns the keys of required that raw does not contain.
func missingKeys(raw map[string]interface{}, required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// asRecord converts a document node into a string keyed map.
func asRecord(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("key %v is %T, expected string", k, k)
			}
			out[key] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is %T, expected a key/value record", v)
	}
}
