package configutil

import (
	"strings"

	"github.com/spf13/viper"
)

// Env reads secrets from the process environment (and an optional .env file
// in the working directory), all keys under a common prefix.
//
// ex. NewEnv("fisconforme").String("anticaptcha_key", "") reads
// FISCONFORME_ANTICAPTCHA_KEY.
type Env struct {
	v *viper.Viper
}

func NewEnv(prefix string) Env {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return Env{v: v}
}

func (e Env) String(key, def string) string {
	if e.v.IsSet(key) {
		value := e.v.GetString(key)
		if value != "" {
			return value
		}
	}
	return def
}

func (e Env) Bool(key string, def bool) bool {
	if e.v.IsSet(key) {
		return e.v.GetBool(key)
	}
	return def
}
