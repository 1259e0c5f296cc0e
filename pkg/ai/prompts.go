package ai

import "strings"

// RenderPrompt fills named {{placeholder}} slots in a template. Placeholders
// without a value in vars are left untouched so missing variables surface in
// the rendered prompt instead of silently disappearing.
func RenderPrompt(template string, vars map[string]string) string {
	rendered := template
	for name, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", value)
	}
	return strings.TrimSpace(rendered)
}

const EntityExtractPrompt = `
# Task Context
You are an information extraction assistant. You will be given a fragment of
web content and must identify the entities it mentions.

# Detailed Task Description & Rules
- Identify every distinct entity in the text.
- Each entity must have one of these types: {{entity_types}}
- Assign a confidence between 0.0 and 1.0 reflecting how certain you are the
  entity is real and correctly typed.
- Include a short context excerpt (the sentence or phrase the entity appears
  in) for every entity.
- Do not invent entities that are not supported by the text.

# Background Data
Document title: {{title}}

Content:
{{content}}

# Output Formatting
Return a JSON object with this structure:
{
  "entities": [
    {
      "name": "<entity name>",
      "type": "<one of the allowed types>",
      "confidence": 0.0,
      "context": "<short excerpt>"
    }
  ]
}
`

const RelationshipPrompt = `
# Task Context
You are an information extraction assistant. You will be given a list of
known entities and the full content they were extracted from, and must
identify relationships between those entities.

# Detailed Task Description & Rules
- Only use entities from the provided list; never introduce new ones.
- Each relationship must have one of these types: {{relation_types}}
- Mark a relationship as bidirectional when it holds equally in both
  directions (for example competes_with).
- Assign a confidence between 0.0 and 1.0.
- Include a short context excerpt supporting each relationship.

# Background Data
Known entities:
{{entities}}

Content:
{{content}}

# Output Formatting
Return a JSON object with this structure:
{
  "relationships": [
    {
      "source": "<name of a known entity>",
      "target": "<name of a known entity>",
      "type": "<one of the allowed types>",
      "confidence": 0.0,
      "context": "<short excerpt>",
      "bidirectional": false
    }
  ]
}
`

const AnalysisPrompt = `
# Task Context
You are a content analyst. You will be given a piece of web content and must
produce a concise analysis of it.

# Detailed Task Description & Rules
- Write a summary of at most three sentences.
- List up to {{max_insights}} key insights as short standalone statements.
- Base everything strictly on the provided content.

# Background Data
Document title: {{title}}

Content:
{{content}}

# Output Formatting
Return a JSON object with this structure:
{
  "summary": "<summary text>",
  "key_insights": ["<insight>", "<insight>"]
}
`
