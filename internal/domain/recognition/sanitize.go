package recognition

import "strings"

var (
	displayMathMarkers = []string{`\[`, `\]`}
	codeFenceMarkers   = []string{"```latex", "```"}
)

// Sanitize strips display-math delimiters and markdown code fences from a
// model reply. Order matters: "```latex" must go before the bare fence.
func Sanitize(content string) string {
	out := strings.TrimSpace(content)
	for _, m := range displayMathMarkers {
		out = strings.ReplaceAll(out, m, "")
	}
	out = strings.TrimSpace(out)
	for _, m := range codeFenceMarkers {
		out = strings.ReplaceAll(out, m, "")
	}
	return strings.TrimSpace(out)
}
