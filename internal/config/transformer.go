package config

import (
	"sort"
	"strings"
	"unicode"
)

// ToEnvVarCase converts a key to SCREAMING_SNAKE_CASE. Dashes, dots,
// spaces and lower-to-upper transitions start a new word:
//
//	githubToken  -> GITHUB_TOKEN
//	github-token -> GITHUB_TOKEN
//	apiKeyV2     -> API_KEY_V2
func ToEnvVarCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	pendingSep := false
	var prev rune
	for _, r := range s {
		if r == '-' || r == '_' || r == ' ' || r == '.' {
			pendingSep = b.Len() > 0
			prev = r
			continue
		}
		if unicode.IsUpper(r) && unicode.IsLower(prev) {
			pendingSep = true
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(unicode.ToUpper(r))
		prev = r
	}
	return b.String()
}

// NormalizeEnvVars rewrites every key with ToEnvVarCase. When two keys
// collapse to the same name, the one already in canonical form wins.
func NormalizeEnvVars(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]string, len(env))
	for _, key := range keys {
		name := ToEnvVarCase(key)
		if _, taken := normalized[name]; taken && key != name {
			continue
		}
		normalized[name] = env[key]
	}
	return normalized
}
