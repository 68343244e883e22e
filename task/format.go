package task

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultDescription is used when the dialogue produced no usable
// description at all.
const defaultDescription = "No description provided."

// budgetPattern extracts the numeric part of a currency-decorated amount
// ("$500", "1,200.50 USD").
var budgetPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// deadlineLayouts are tried in order when the deadline arrives as a string.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
}

// FormatSpec projects the dialogue's extracted parameters into a
// canonical Specification. It is deterministic for equal inputs except
// for the deadline futurity check, which is evaluated against the
// current time.
func FormatSpec(params map[string]any) *Specification {
	return formatSpecAt(params, time.Now())
}

func formatSpecAt(params map[string]any, now time.Time) *Specification {
	spec := &Specification{
		Description: defaultDescription,
		Inputs:      coerceMapping(params["inputs"]),
		Outputs:     coerceMapping(params["outputs"]),
	}

	if desc := firstString(params, "refined_description", "initial_description"); desc != "" {
		spec.Description = desc
	}

	constraints := &Constraints{}

	if budget := parseBudget(params["budget"]); budget > 0 {
		constraints.Budget = budget
	}
	if deadline, ok := parseDeadline(params["deadline"]); ok && deadline.After(now) {
		constraints.Deadline = &deadline
	}
	if quality := firstString(params, "quality"); quality != "" {
		constraints.Quality = strings.ToLower(quality)
	}
	if timeframe := firstString(params, "timeframe"); timeframe != "" {
		constraints.Timeframe = timeframe
	}

	platforms := normaliseList(listValue(params, "platforms", "required_platforms"))
	competitors := normaliseList(listValue(params, "competitors"))
	constraints.RequiredPlatforms = platforms
	constraints.Competitors = competitors

	if !constraints.Empty() {
		spec.Constraints = constraints
	}

	tags := normaliseList(listValue(params, "tags", "initial_tags"))
	for _, p := range platforms {
		tags = append(tags, "platform:"+p)
	}
	for _, c := range competitors {
		tags = append(tags, "competitor:"+c)
	}
	spec.Tags = dedupe(tags)

	if hint, ok := boolValue(params, "is_complex"); ok {
		spec.IsComplex = hint
	} else {
		spec.IsComplex = len(platforms) > 1 ||
			constraints.Quality != "" ||
			len(competitors) > 0 ||
			len(spec.Inputs) > 1 ||
			len(spec.Outputs) > 1
	}

	return spec
}

// coerceMapping accepts only object-shaped values; arrays and scalars
// are rejected and yield an empty mapping.
func coerceMapping(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// firstString returns the first non-empty trimmed string among the keys.
func firstString(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := params[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// listValue reads the first present key as a string list, accepting
// []string, []any of strings, or a comma-separated string.
func listValue(params map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := params[key].(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			return strings.Split(v, ",")
		}
	}
	return nil
}

// boolValue reads a boolean hint, accepting bool or "true"/"false".
func boolValue(params map[string]any, key string) (bool, bool) {
	switch v := params[key].(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}

// parseBudget accepts a JSON number or a currency-decorated string.
// Non-positive and unparseable amounts yield zero (dropped).
func parseBudget(v any) float64 {
	switch b := v.(type) {
	case float64:
		return b
	case int:
		return float64(b)
	case int64:
		return float64(b)
	case string:
		match := budgetPattern.FindString(b)
		if match == "" {
			return 0
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
		if err != nil {
			return 0
		}
		return amount
	}
	return 0
}

// parseDeadline accepts a time.Time, a date string, or epoch
// milliseconds.
func parseDeadline(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, true
	case string:
		trimmed := strings.TrimSpace(d)
		for _, layout := range deadlineLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(d)), true
	case int64:
		return time.UnixMilli(d), true
	case int:
		return time.UnixMilli(int64(d)), true
	}
	return time.Time{}, false
}

// normaliseList trims entries, drops empties, lowercases, and
// deduplicates preserving first-seen order.
func normaliseList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return dedupe(out)
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(items []string) []string {
	if items == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
