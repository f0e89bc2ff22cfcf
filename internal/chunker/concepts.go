package chunker

import (
	"regexp"
	"strings"
)

var mathKeywords = []string{
	"theorem", "lemma", "corollary", "proof", "definition", "proposition",
	"solve", "calculate", "compute", "derive", "prove", "show",
	"equation", "formula", "expression", "function", "variable",
	"integral", "derivative", "limit", "sum", "product",
	"matrix", "vector", "scalar", "tensor",
	"example", "problem", "solution", "step",
}

// mathPattern matches named keywords as whole words (case-insensitive),
// comparison symbols and special symbols.
var mathPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(mathKeywords, "|") + `)\b|[=<>≤≥≠≈]|[∫∑∏√∞]`)

// HasMathConcept reports whether text contains a domain-concept marker.
func HasMathConcept(text string) bool {
	return mathPattern.MatchString(text)
}
