package wrpc

import (
	"flag"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LoadChannelOptionsFromFile reads file (any format viper supports: yaml,
// json, toml, ...) and decodes it into a ChannelOptions, starting from
// DefaultChannelOptions so a config file only needs to name the fields it
// overrides. When bindFlags is true, the process's flag.CommandLine flags
// are also bound so a command-line flag can override the file.
func LoadChannelOptionsFromFile(file string, bindFlags bool) (ChannelOptions, error) {
	opts := DefaultChannelOptions()

	if bindFlags {
		pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
		pflag.Parse()
		if err := viper.BindPFlags(pflag.CommandLine); err != nil {
			return opts, fmt.Errorf("%w: bind flags: %v", ErrInvalidArgument, err)
		}
	}

	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("%w: read config %q: %v", ErrInvalidArgument, file, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("%w: build decoder: %v", ErrInvalidArgument, err)
	}
	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return opts, fmt.Errorf("%w: decode config %q: %v", ErrInvalidArgument, file, err)
	}
	return opts, nil
}
