package config

import (
	"regexp"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// applyEnv overlays APP_ variables onto cfg. The name maps onto the YAML
// path, so APP_SECURITY__JWT_KEY sets security.jwt_key.
func applyEnv(cfg *Config, environ []string) error {
	overrides := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), EnvSeparator)
		setPath(overrides, path, envValue(value))
	}
	if len(overrides) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(overrides)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode environment overrides")
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid environment override")
	}
	return nil
}

// envValue keeps secrets such as "0123" as written and only types plain
// booleans, small integers and flow sequences.
func envValue(value string) any {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "true" || trimmed == "false":
		return trimmed == "true"
	case smallInt.MatchString(trimmed):
		n, err := strconv.Atoi(trimmed)
		if err == nil {
			return n
		}
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		var seq []any
		if err := yaml.Unmarshal([]byte(trimmed), &seq); err == nil {
			return seq
		}
	}
	return value
}

var smallInt = regexp.MustCompile(`^(0|-?[1-9][0-9]{0,8})$`)

func setPath(dst map[string]any, path []string, value any) {
	for i, segment := range path {
		if segment == "" {
			return
		}
		if i == len(path)-1 {
			dst[segment] = value
			return
		}
		next, ok := dst[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			dst[segment] = next
		}
		dst = next
	}
}
