package engine

import (
	"strings"
	"testing"
)

func TestInterpolate(t *testing.T) {
	data := map[string]any{
		"name": "Ada",
		"result": map[string]any{
			"score": 42.0,
			"tags":  []any{"a", "b"},
		},
		"html": "<p>hi</p>",
	}

	tests := []struct {
		name     string
		template string
		data     any
		want     string
	}{
		{"input string", "{{input}}", "hello", "hello"},
		{"input object", "x={{input}}", map[string]any{"a": "b"}, `x={"a":"b"}`},
		{"dot path", "Hi {{name}}!", data, "Hi Ada!"},
		{"nested number", "score: {{result.score}}", data, "score: 42"},
		{"nested array", "{{result.tags}}", data, `["a","b"]`},
		{"array index", "{{result.tags.1}}", data, "b"},
		{"unresolved kept", "{{missing}} and {{name}}", data, "{{missing}} and Ada"},
		{"no html escaping", "{{html}}", data, "<p>hi</p>"},
		{"path on string input", "{{name}}", "plain", "{{name}}"},
		{"empty template returns data", "", "raw", "raw"},
		{"empty template object", "", map[string]any{"k": 1.0}, `{"k":1}`},
		{"spaces not a token", "{{ name }}", data, "{{ name }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interpolate(tt.template, tt.data); got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestInterpolate_Idempotent(t *testing.T) {
	data := map[string]any{"a": "x", "b": map[string]any{"c": "y"}}
	template := "{{a}}-{{b.c}}"

	once := Interpolate(template, data)
	if strings.Contains(once, "{{") {
		t.Fatalf("fully resolvable template left tokens: %q", once)
	}
	if twice := Interpolate(once, data); twice != once {
		t.Errorf("re-render changed output: %q -> %q", once, twice)
	}
}

func TestInterpolate_MergedInput(t *testing.T) {
	merged := MergedInput{
		Keys:   []string{"n1", "n2"},
		Values: map[string]any{"n1": "one", "n2": map[string]any{"v": "two"}},
	}

	got := Interpolate("{{n1}} {{n2.v}} {{input}}", merged)
	want := `one two {"n1":"one","n2":{"v":"two"}}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPlaceholders(t *testing.T) {
	keys := Placeholders("{{input}} then {{a.b}} and {{c-d}}")
	if len(keys) != 3 || keys[0] != "input" || keys[1] != "a.b" || keys[2] != "c-d" {
		t.Errorf("unexpected keys: %v", keys)
	}
}
