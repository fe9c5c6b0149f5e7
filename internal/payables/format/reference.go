package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

const DefaultReferenceTemplate = "AP-{YYYY}{MM}{DD}-{SEQ6}"

// Reference formats the human-readable AP reference of a record from a
// template, the record creation time and a per-organization sequence.
func Reference(template string, createdAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("reference template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid reference sequence: %d", seq)
	}

	createdAt = createdAt.UTC()
	out := template

	out = strings.ReplaceAll(out, "{YYYY}", createdAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", createdAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", createdAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", createdAt.Format("02"))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in reference format: %s", out)
	}
	return out, nil
}

// ValidateTemplate checks a template resolves with a sample sequence.
func ValidateTemplate(template string) error {
	_, err := Reference(template, time.Unix(0, 0), 1)
	return err
}
