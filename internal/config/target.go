package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TargetInput holds the flags of the target add command.
type TargetInput struct {
	AbiPath  string
	Events   []string
	Actions  []string
	ClientID string
	Extra    map[string]any
}

// LoadTargetInput reads target add flags. Extra info given as k=v pairs keeps
// string values.
func LoadTargetInput(flags *pflag.FlagSet) (TargetInput, error) {
	v := viper.New()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return TargetInput{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	extra := make(map[string]any)
	for k, val := range getStringMap(v, "extra") {
		extra[k] = val
	}
	if len(extra) == 0 {
		extra = nil
	}

	return TargetInput{
		AbiPath:  v.GetString("abi"),
		Events:   getStringSlice(v, "events"),
		Actions:  getStringSlice(v, "actions"),
		ClientID: v.GetString("client-id"),
		Extra:    extra,
	}, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
