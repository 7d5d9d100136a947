package util

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
)

// DecodeConfig wraps the mapstructure decoder to unpack a map into a
// struct and the envconfig decoder to read environment variables.
//
// Sinks use this to unpack the configuration section specific to that
// sink from within the entire config: the per-sink section arrives as an
// untyped map from the YAML loader, and environment variables prefixed
// with the sink's name override individual fields.
func DecodeConfig(name string, input interface{}, output interface{}) error {
	configDecoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &output,
		TagName:    "yaml",
	})
	if err != nil {
		return err
	}
	err = configDecoder.Decode(input)
	if err != nil {
		return err
	}
	err = envconfig.Process(name, output)
	if err != nil {
		return err
	}
	return nil
}
