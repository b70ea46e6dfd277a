package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile("{(.*?)}")

// ResolveString substitutes {$.path} tokens with values looked up in data.
// A string made of a single token resolves to the raw value, keeping its type.
func ResolveString(data map[string]any, s string) (any, error) {
	tokens := tokenPattern.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s, nil
	}
	tokenMap := make(map[string]any)
	for _, token := range tokens {
		tmatch := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(tmatch, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, tmatch)
		if err != nil {
			return nil, fmt.Errorf("error resolving %s: %w", token, err)
		}
		if token == s {
			return value, nil
		}
		tokenMap[token] = value
	}
	newStr := s
	for t, tv := range tokenMap {
		newStr = strings.ReplaceAll(newStr, t, fmt.Sprintf("%v", tv))
	}
	return newStr, nil
}

// ValidatePath reports whether a {$.path} expression compiles.
func ValidatePath(expression string) error {
	if !strings.HasPrefix(expression, "{") || !strings.HasSuffix(expression, "}") {
		return fmt.Errorf("expression should be enclosed in {}")
	}
	tmatch := strings.TrimSuffix(strings.TrimPrefix(expression, "{"), "}")
	if _, err := jsonpath.Compile(tmatch); err != nil {
		return fmt.Errorf("expression should be a valid jsonpath expression: %w", err)
	}
	return nil
}

// LookupPath evaluates a {$.path} expression against data.
func LookupPath(data map[string]any, expression string) (any, error) {
	tmatch := strings.TrimSuffix(strings.TrimPrefix(expression, "{"), "}")
	return jsonpath.JsonPathLookup(data, tmatch)
}
