package oracle

import (
	"fmt"
	"regexp"
)

// InjectionType represents the kind of prompt injection found in gating input
type InjectionType string

const (
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeRoleManipulation    InjectionType = "role_manipulation"
	InjectionTypeVerdictSteering     InjectionType = "verdict_steering"
	InjectionTypeDelimiterAttack     InjectionType = "delimiter_attack"
	InjectionTypeJailbreak           InjectionType = "jailbreak"
)

// InjectionDetection represents a detected injection attempt
type InjectionDetection struct {
	Type       InjectionType
	Confidence float64
	StartPos   int
	EndPos     int
}

type injectionPattern struct {
	kind       InjectionType
	confidence float64
	re         *regexp.Regexp
}

// Gating context fields such as product names or addresses are user-controlled
// and end up verbatim in the oracle prompt.
var injectionPatterns = []injectionPattern{
	{InjectionTypeInstructionOverride, 0.9, regexp.MustCompile(`(?i)ignore\s+(all\s+|the\s+|any\s+)*(previous\s+|above\s+|prior\s+)?(instructions?|rules?|prompts?)`)},
	{InjectionTypeInstructionOverride, 0.9, regexp.MustCompile(`(?i)disregard\s+(all\s+|the\s+|any\s+)*(previous\s+|above\s+|prior\s+)?(instructions?|rules?|commands?)`)},
	{InjectionTypeInstructionOverride, 0.85, regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous|the\s+rules)`)},
	{InjectionTypeRoleManipulation, 0.85, regexp.MustCompile(`(?i)(you|your)\s+(are|role|identity)\s+(now|is|changed)`)},
	{InjectionTypeRoleManipulation, 0.85, regexp.MustCompile(`(?i)from\s+now\s+on[,]?\s+(you|your)\s+(are|will)`)},
	{InjectionTypeVerdictSteering, 0.9, regexp.MustCompile(`(?i)(always\s+)?(answer|reply|respond|say|output)\s+(with\s+)?["']?(true|yes)\b`)},
	{InjectionTypeVerdictSteering, 0.85, regexp.MustCompile(`(?i)(all\s+)?rules?\s+(are|is)\s+(already\s+)?(satisfied|met|true)`)},
	{InjectionTypeDelimiterAttack, 0.8, regexp.MustCompile(`(\[SYSTEM\]|\[/SYSTEM\]|\[USER\]|\[ASSISTANT\])`)},
	{InjectionTypeDelimiterAttack, 0.8, regexp.MustCompile(`(<\|system\|>|<\|user\|>|<\|assistant\|>|<\|end\|>)`)},
	{InjectionTypeDelimiterAttack, 0.8, regexp.MustCompile(`(###\s*(SYSTEM|USER|ASSISTANT|INSTRUCTION))`)},
	{InjectionTypeJailbreak, 0.95, regexp.MustCompile(`(?i)(DAN|developer|god|unrestricted)\s+mode`)},
	{InjectionTypeJailbreak, 0.95, regexp.MustCompile(`(?i)jailbreak`)},
}

// DetectInjections returns all injection attempts found in text
func DetectInjections(text string) []InjectionDetection {
	var detections []InjectionDetection
	for _, p := range injectionPatterns {
		for _, match := range p.re.FindAllStringIndex(text, -1) {
			detections = append(detections, InjectionDetection{
				Type:       p.kind,
				Confidence: p.confidence,
				StartPos:   match[0],
				EndPos:     match[1],
			})
		}
	}
	return detections
}

// GuardAgainstInjection returns an error when text carries a high-confidence
// injection attempt
func GuardAgainstInjection(text string) error {
	for _, d := range DetectInjections(text) {
		if d.Confidence >= 0.8 {
			return fmt.Errorf("potential prompt injection detected: %s (confidence: %.2f)", d.Type, d.Confidence)
		}
	}
	return nil
}
