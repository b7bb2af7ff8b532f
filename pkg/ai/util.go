package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// stripCodeFence removes a surrounding markdown fence such as ```json ... ```.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// trimToPayload drops prose before the first '{' or '[' and after the matching
// last '}' or ']'.
func trimToPayload(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// GenerateSchema creates a JSON Schema from the given Go type.
// It uses reflection to inspect the type structure and generates
// a schema suitable for use with AI structured output.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// UnmarshalFlexible attempts to unmarshal JSON into the target with multiple fallback strategies.
// It first tries standard JSON unmarshaling, then handles markdown fences, surrounding prose
// and double-encoded JSON strings, and finally attempts to repair malformed JSON before parsing.
//
// Example:
//
//	var result MyStruct
//	UnmarshalFlexible(`{"name": "test"}`, &result)             // standard JSON
//	UnmarshalFlexible("```json\n{\"name\": \"test\"}\n```", &result) // fenced
//	UnmarshalFlexible(`"{\"name\": \"test\"}"`, &result)       // double-encoded
//	UnmarshalFlexible(`{name: "test"}`, &result)               // malformed (repaired)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		input = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(input), out); err == nil {
			return nil
		}
	}

	input = trimToPayload(stripCodeFence(input))
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	input = stripDuplicateLeadingBrace(input)
	if !strings.HasPrefix(input, "{") && !strings.HasPrefix(input, "[") {
		return fmt.Errorf("no json payload in model output: %.200s", input)
	}
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %.200s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w (repaired: %.200s)", err, repaired)
	}
	return nil
}
