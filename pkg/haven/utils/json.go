package utils

import (
	"encoding/json"
	"strings"
)

// StripCodeFences removes a surrounding markdown code block (``` or ```json)
// and trims whitespace. Text without fences is returned trimmed.
func StripCodeFences(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line, including any language tag
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// CleanJSONResponse removes markdown code blocks and cuts the text down to
// the outermost JSON object or array. When both spans exist the earlier one
// wins only if it is valid JSON, so bracketed prose before an object does not
// hide it.
func CleanJSONResponse(response string) string {
	response = StripCodeFences(response)

	obj, objStart := jsonSpan(response, "{", "}")
	arr, arrStart := jsonSpan(response, "[", "]")

	switch {
	case obj == "" && arr == "":
		return response
	case obj == "":
		return arr
	case arr == "":
		return obj
	}

	first, second := obj, arr
	if arrStart < objStart {
		first, second = arr, obj
	}
	if json.Valid([]byte(first)) {
		return first
	}
	if json.Valid([]byte(second)) {
		return second
	}
	return obj
}

// jsonSpan returns the text from the first opener to the last closer and the
// opener's offset, or "" when there is no such span.
func jsonSpan(s, opener, closer string) (string, int) {
	start := strings.Index(s, opener)
	end := strings.LastIndex(s, closer)
	if start < 0 || end <= start {
		return "", -1
	}
	return strings.TrimSpace(s[start : end+1]), start
}

// ParseJSONResponse parses a potentially messy model JSON response
func ParseJSONResponse(response string, target interface{}) error {
	cleaned := CleanJSONResponse(response)
	return json.Unmarshal([]byte(cleaned), target)
}

// MustParseJSON parses JSON or falls back to a default value. The returned
// bool reports whether the fallback was used.
func MustParseJSON(response string, target interface{}, defaultValue interface{}) (bool, error) {
	if err := ParseJSONResponse(response, target); err == nil {
		return false, nil
	}
	defaultJSON, err := json.Marshal(defaultValue)
	if err != nil {
		return true, err
	}
	return true, json.Unmarshal(defaultJSON, target)
}
