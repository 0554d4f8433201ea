package widget

import (
	"github.com/mitchellh/mapstructure"
)

// decodeConfig decodes a loosely-typed widget config into out.
// Values written in YAML or TOML ("3" vs 3) are weakly converted.
func decodeConfig(config map[string]any, out any) error {
	if len(config) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(config)
}

type textConfig struct {
	MaxLength int    `mapstructure:"max_length"`
	Rows      int    `mapstructure:"rows"`
	Format    string `mapstructure:"format"`
}

type numberConfig struct {
	Min  *float64 `mapstructure:"min"`
	Max  *float64 `mapstructure:"max"`
	Step float64  `mapstructure:"step"`
}

type selectConfig struct {
	Options  []string `mapstructure:"options"`
	Multiple bool     `mapstructure:"multiple"`
}

type fileConfig struct {
	Accept  []string `mapstructure:"accept"`
	MaxSize int64    `mapstructure:"max_size"`
}
