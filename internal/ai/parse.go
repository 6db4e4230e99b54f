package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// cleanResponse removes markdown code fences and surrounding whitespace
func cleanResponse(raw string) string {
	clean := strings.TrimSpace(raw)
	if strings.Contains(clean, "```") {
		clean = strings.TrimSpace(fenceRe.ReplaceAllString(clean, ""))
	}
	return clean
}

// decodeObject parses text as a JSON object with lower-cased keys. When the
// whole text is not an object, the outermost {...} span is tried, and kept
// only if it carries one of keys.
func decodeObject(text string, keys ...string) (map[string]any, bool) {
	if obj, ok := unmarshalObject(text); ok {
		return obj, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	obj, ok := unmarshalObject(text[start : end+1])
	if !ok {
		return nil, false
	}
	if _, found := lookup(obj, keys...); !found {
		return nil, false
	}
	return obj, true
}

func unmarshalObject(text string) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil || raw == nil {
		return nil, false
	}

	obj := make(map[string]any, len(raw))
	for k, v := range raw {
		obj[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return obj, true
}

// lookup returns the first key present in obj
func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// stringify renders a JSON value as text
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// parseTemplate turns model output into a template draft. It never fails:
// text that is not a JSON object becomes the body of a "<type> Simulation" draft.
// The second result reports whether the strict path succeeded.
func parseTemplate(templateType, raw string) (GeneratedTemplate, bool) {
	clean := cleanResponse(raw)

	obj, ok := decodeObject(clean, "subject", "email subject", "body", "email body")
	if !ok {
		return GeneratedTemplate{
			Subject: templateType + " Simulation",
			Body:    clean,
		}, false
	}

	draft := GeneratedTemplate{Subject: "No Subject", Body: "No Content"}
	if v, ok := lookup(obj, "subject", "email subject"); ok {
		draft.Subject = stringify(v)
	}
	if v, ok := lookup(obj, "body", "email body"); ok {
		draft.Body = stringify(v)
	}
	return draft, true
}

// parseAnalysis extracts the red flag list. It reports false when the
// output holds no usable analysis.
func parseAnalysis(raw string) ([]string, bool) {
	obj, ok := decodeObject(cleanResponse(raw), "analysis")
	if !ok {
		return nil, false
	}

	var flags []string
	switch v := obj["analysis"].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			flags = []string{s}
		}
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				flags = append(flags, s)
			}
		}
	}

	if len(flags) == 0 {
		return nil, false
	}
	return flags, true
}
