// Package structured recovers JSON values from free-form oracle text.
// Reasoning services are asked for strict JSON but routinely wrap it in
// prose, markdown fences, or partial output. Rather than one brittle
// parse, recovery runs an ordered list of named strategies and takes
// the first hit; the list is data, so tests can assert exactly which
// strategy rescued a given reply.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnrecoverable is returned when every strategy fails.
var ErrUnrecoverable = errors.New("no JSON value recoverable from text")

// MaxListItems caps recovered lists. Oracles asked for "3-5 items"
// sometimes return many more; downstream fan-out cost scales with this.
const MaxListItems = 5

// ListStrategy attempts to pull a string list out of raw text.
// A nil, false return means "no opinion, try the next strategy".
type ListStrategy struct {
	Name    string
	Recover func(text string) ([]string, bool)
}

// ObjectStrategy attempts to pull a JSON object out of raw text.
type ObjectStrategy struct {
	Name    string
	Recover func(text string) (map[string]any, bool)
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	bracketRe   = regexp.MustCompile(`(?s)\[.*?\]`)
	braceRe     = regexp.MustCompile(`(?s)\{.*\}`)
	quotedRe    = regexp.MustCompile(`"([^"]+)"`)
)

// ListStrategies is the ordered strategy list for list recovery.
// Order matters: strict parses first, lossy scans last.
var ListStrategies = []ListStrategy{
	{Name: "direct-json", Recover: func(text string) ([]string, bool) {
		return parseStringList(strings.TrimSpace(text))
	}},
	{Name: "code-fence", Recover: func(text string) ([]string, bool) {
		for _, m := range codeFenceRe.FindAllStringSubmatch(text, -1) {
			if list, ok := parseStringList(strings.TrimSpace(m[1])); ok {
				return list, true
			}
		}
		return nil, false
	}},
	{Name: "bracket-scan", Recover: func(text string) ([]string, bool) {
		for _, m := range bracketRe.FindAllString(text, -1) {
			if list, ok := parseStringList(m); ok {
				return list, true
			}
		}
		return nil, false
	}},
	{Name: "quoted-strings", Recover: func(text string) ([]string, bool) {
		var out []string
		for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
			s := strings.TrimSpace(m[1])
			if s != "" {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	}},
}

// ObjectStrategies is the ordered strategy list for object recovery.
var ObjectStrategies = []ObjectStrategy{
	{Name: "direct-json", Recover: func(text string) (map[string]any, bool) {
		return parseObject(strings.TrimSpace(text))
	}},
	{Name: "code-fence", Recover: func(text string) (map[string]any, bool) {
		for _, m := range codeFenceRe.FindAllStringSubmatch(text, -1) {
			if obj, ok := parseObject(strings.TrimSpace(m[1])); ok {
				return obj, true
			}
		}
		return nil, false
	}},
	{Name: "brace-scan", Recover: func(text string) (map[string]any, bool) {
		if m := braceRe.FindString(text); m != "" {
			return parseObject(m)
		}
		return nil, false
	}},
}

// RecoverList runs the list strategies in order and returns the first
// recovered list, capped at MaxListItems, plus the winning strategy
// name. All strategies failing is a hard error.
func RecoverList(text string) ([]string, string, error) {
	for _, s := range ListStrategies {
		if list, ok := s.Recover(text); ok {
			if len(list) > MaxListItems {
				list = list[:MaxListItems]
			}
			return list, s.Name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnrecoverable, snippet(text))
}

// RecoverObject runs the object strategies in order and returns the
// first recovered object plus the winning strategy name.
func RecoverObject(text string) (map[string]any, string, error) {
	for _, s := range ObjectStrategies {
		if obj, ok := s.Recover(text); ok {
			return obj, s.Name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnrecoverable, snippet(text))
}

func parseStringList(s string) ([]string, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	var out []string
	for _, v := range raw {
		if str, ok := v.(string); ok {
			str = strings.TrimSpace(str)
			if str != "" {
				out = append(out, str)
			}
		}
	}
	return out, len(out) > 0
}

func parseObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, len(obj) > 0
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 80 {
		return text[:80] + "..."
	}
	return text
}
