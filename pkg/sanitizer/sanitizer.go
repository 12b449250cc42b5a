package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

const MaxSubjectIDLength = 128

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reValidSubjectID = regexp.MustCompile(`^[A-Za-z0-9._:@|\-]+$`)

	subjectIDPipeline = Pipeline{strings.TrimSpace, rejectInvalidSubjectID}
	rolePipeline      = Pipeline{TrimAndNormalize, strings.ToLower}
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// SubjectID returns id trimmed, or "" when it is too long or carries
// characters outside the identifier alphabet.
func SubjectID(id string) string {
	return subjectIDPipeline.Apply(id)
}

func Role(role string) string {
	return rolePipeline.Apply(role)
}

func rejectInvalidSubjectID(id string) string {
	if len(id) > MaxSubjectIDLength || !reValidSubjectID.MatchString(id) {
		return ""
	}
	return id
}
