package sanitizer

import (
	"strings"
	"unicode"

	"tripsync/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// unquote strips one pair of surrounding double quotes, as some HTTP
// clients send header values quoted.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

var idempotencyKeyPipeline = Pipeline{
	dropControl,
	strings.TrimSpace,
	unquote,
	strings.TrimSpace,
}

func IdempotencyKey(raw string) string {
	return idempotencyKeyPipeline.Apply(raw)
}

func TripState(raw string) model.TripState {
	return model.TripState(Pipeline{dropControl, strings.TrimSpace}.Apply(raw))
}
