// Copyright 2026 NVIDIA CORPORATION & AFFILIATES
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sweep

import (
	"fmt"
	"strings"

	"github.com/ishandhanani/infbench/pkg/config"
)

// ExpandTemplate recursively rewrites {param} placeholders in a nested
// structure of mappings, sequences, and strings. Mapping keys are left
// untouched; non-string leaves pass through unchanged.
//
// Strings are rewritten in a single left-to-right scan that tokenizes each
// {identifier} and looks it up in params once. Sequential whole-string
// replacement would let one parameter name corrupt another when it is a
// substring of it (params "x" and "xy" must never interact).
//
// An {identifier} with no binding is an error naming the placeholder and the
// offending template string. Shell parameter expansions (${VAR}) are not
// placeholders and pass through.
func ExpandTemplate(v any, params map[string]any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			expanded, err := ExpandTemplate(item, params)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case config.FlagMap:
		out := make(config.FlagMap, len(val))
		for k, item := range val {
			expanded, err := ExpandTemplate(item, params)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := ExpandTemplate(item, params)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	case string:
		return expandString(val, params)
	default:
		return v, nil
	}
}

func expandString(s string, params map[string]any) (string, error) {
	if !strings.ContainsRune(s, '{') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '{' || (i > 0 && s[i-1] == '$') {
			b.WriteByte(s[i])
			i++
			continue
		}

		name, end := scanPlaceholder(s, i)
		if name == "" {
			b.WriteByte(s[i])
			i++
			continue
		}

		value, ok := params[name]
		if !ok {
			return "", fmt.Errorf("unresolved placeholder {%s} in template %q", name, s)
		}
		b.WriteString(formatValue(value))
		i = end
	}
	return b.String(), nil
}

// scanPlaceholder reads an {identifier} starting at s[start]. It returns the
// identifier and the index past the closing brace, or "" when the braces do
// not delimit an identifier.
func scanPlaceholder(s string, start int) (string, int) {
	i := start + 1
	if i >= len(s) || !isIdentStart(s[i]) {
		return "", 0
	}
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	if i >= len(s) || s[i] != '}' {
		return "", 0
	}
	return s[start+1 : i], i + 1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func formatValue(v any) string {
	return fmt.Sprintf("%v", v)
}
