// Package util binds cobra flags and environment variables to viper config keys.
package util

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Binding ties a config key to the CLI flag and environment variable that set it.
type Binding struct {
	Key  string
	Flag string
	Env  string
}

// MustBind registers every binding against flags. It panics when a flag is missing
// from the set.
func MustBind(flags *pflag.FlagSet, bindings ...Binding) {
	for _, b := range bindings {
		MustBindPFlag(b.Key, flags.Lookup(b.Flag))
		if b.Env != "" {
			MustBindEnv(b.Key, b.Env)
		}
	}
}

// MustBindPFlag binds key to flag and panics if flag is nil.
func MustBindPFlag(key string, flag *pflag.Flag) {
	mustBind("pflag", viper.BindPFlag(key, flag))
}

// MustBindEnv binds input[0] to the environment variables that follow it, or to
// its DATAGATE_ prefixed name when none follow.
func MustBindEnv(input ...string) {
	mustBind("env key", viper.BindEnv(input...))
}

func mustBind(kind string, err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to bind %s: %v", kind, err))
	}
}
