// Package configbinder decodes loosely typed configuration into structs.
package configbinder

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes raw (typically a map[string]interface{} from YAML) into target using the yaml
// tags of target's fields. Strings are converted to numbers and bools, so values coming from
// environment variables decode like their YAML counterparts.
func Bind(raw interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}
