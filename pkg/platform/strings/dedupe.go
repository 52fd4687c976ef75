// Package strings holds small list helpers shared by config parsing and
// request normalization.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops blanks and repeats, keeping the
// first occurrence order. A nil input stays nil.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList splits a sep-separated list such as KAFKA_BROKERS into its
// distinct non-empty entries. An empty input yields nil.
func SplitList(v, sep string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, sep))
}
