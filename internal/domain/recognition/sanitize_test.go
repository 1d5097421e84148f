package recognition

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced display math", in: "```latex\n\\[x^2\\]\n```", want: "x^2"},
		{name: "plain", in: "  a+b  ", want: "a+b"},
		{name: "bare fence", in: "```\n\\frac{1}{2}\n```", want: `\frac{1}{2}`},
		{name: "inner brackets kept", in: `\[ [a,b] \]`, want: "[a,b]"},
		{name: "empty", in: "", want: ""},
		{name: "inline parens untouched", in: `\(x\)`, want: `\(x\)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
