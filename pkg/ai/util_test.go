package ai

import "testing"

type testPayload struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "plain json",
			input: `{"name": "a", "items": ["x"]}`,
		},
		{
			name:  "double encoded",
			input: `"{\"name\": \"a\", \"items\": [\"x\"]}"`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"name\": \"a\", \"items\": [\"x\"]}\n```",
		},
		{
			name:  "trailing comma repaired",
			input: `{"name": "a", "items": ["x"],}`,
		},
		{
			name:  "duplicate leading brace",
			input: `{{"name": "a", "items": ["x"]}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out testPayload
			if err := UnmarshalFlexible(test.input, &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Name != "a" || len(out.Items) != 1 || out.Items[0] != "x" {
				t.Fatalf("unexpected payload: %+v", out)
			}
		})
	}
}

func TestUnmarshalFlexibleRejectsGarbage(t *testing.T) {
	var out testPayload
	if err := UnmarshalFlexible("complete nonsense without structure", &out); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRenderPrompt(t *testing.T) {
	rendered := RenderPrompt("Hello {{name}}, you have {{count}} items. {{missing}}", map[string]string{
		"name":  "World",
		"count": "3",
	})
	expected := "Hello World, you have 3 items. {{missing}}"
	if rendered != expected {
		t.Fatalf("expected %q, got %q", expected, rendered)
	}
}

func TestRenderPromptTrimsTemplate(t *testing.T) {
	rendered := RenderPrompt(EntityExtractPrompt, map[string]string{
		"entity_types": "person",
		"title":        "T",
		"content":      "C",
	})
	if rendered == "" {
		t.Fatalf("rendered prompt must not be empty")
	}
	if rendered[0] == '\n' {
		t.Fatalf("rendered prompt must be trimmed")
	}
}
