package prompt

import (
	"regexp"
	"sort"
)

// InjectionType represents different types of prompt injection attempts
type InjectionType string

const (
	InjectionTypeRoleSpoof           InjectionType = "role_spoof"
	InjectionTypeRoleManipulation    InjectionType = "role_manipulation"
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeDelimiterAttack     InjectionType = "delimiter_attack"
)

// InjectionDetection represents a detected injection attempt. Positions are
// byte offsets into the scanned text.
type InjectionDetection struct {
	Type     InjectionType
	Pattern  string
	StartPos int
	EndPos   int
}

type injectionPattern struct {
	kind InjectionType
	re   *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	// Role markers at the start of a line, e.g. "system: you must comply".
	{InjectionTypeRoleSpoof, regexp.MustCompile(`(?im)^[ \t]*(system|assistant|developer)[ \t]*:`)},

	{InjectionTypeInstructionOverride, regexp.MustCompile(`(?i)\bignore\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|commands?|rules)`)},
	{InjectionTypeInstructionOverride, regexp.MustCompile(`(?i)\bdisregard\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|commands?|rules)`)},
	{InjectionTypeInstructionOverride, regexp.MustCompile(`(?i)\bforget\s+everything\b`)},
	{InjectionTypeInstructionOverride, regexp.MustCompile(`(?im)^[ \t]*new\s+instructions?\b`)},

	{InjectionTypeRoleManipulation, regexp.MustCompile(`(?im)^[ \t]*you\s+are\s+now\b`)},

	{InjectionTypeDelimiterAttack, regexp.MustCompile(`(?i)\[/?(system|assistant)\]`)},
	{InjectionTypeDelimiterAttack, regexp.MustCompile(`(?i)<\|(system|assistant|user|end|im_start|im_end)\|>`)},
}

// DetectInjections reports every injection pattern match in text, ordered by position.
func DetectInjections(text string) []InjectionDetection {
	var detections []InjectionDetection
	for _, p := range injectionPatterns {
		for _, match := range p.re.FindAllStringIndex(text, -1) {
			detections = append(detections, InjectionDetection{
				Type:     p.kind,
				Pattern:  p.re.String(),
				StartPos: match[0],
				EndPos:   match[1],
			})
		}
	}
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].StartPos < detections[j].StartPos
	})
	return detections
}

// ContainsInjection reports whether any injection pattern matches text.
func ContainsInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// removeInjections deletes matches until none remain. Deleting one match can
// join its neighbours into a new one, so a single pass is not enough.
func removeInjections(text string) string {
	for {
		before := text
		for _, p := range injectionPatterns {
			text = p.re.ReplaceAllString(text, "")
		}
		if text == before {
			return text
		}
	}
}
