package domain

import "time"

// ExampleFlowID — ID демонстрационного flow, который засеивается в пустое хранилище.
const ExampleFlowID = "example-designer-builder"

const (
	designerPrompt = "You are an expert educational game designer. Given a topic, you design a detailed concept " +
		"for a single-page interactive browser game that teaches the topic effectively. Your design should include:\n\n" +
		"1. Game title\n2. Learning objectives (2-3 bullet points)\n3. Game mechanics: how the player interacts and learns\n" +
		"4. Visual layout description: what the page looks like, where elements are placed\n" +
		"5. Scoring/feedback system: how the player knows they're learning\n" +
		"6. Content details: the specific questions, facts, or challenges to include (at least 8-10 items)\n\n" +
		"Keep the scope realistic for a single HTML file with embedded CSS and JS. Favor simple but engaging mechanics: " +
		"quizzes, drag-and-drop matching, flashcard flip, timed challenges, sorting, etc."

	builderPrompt = "You are an expert front-end developer who builds interactive educational games as single HTML files. " +
		"You receive a game design document and produce a complete, self-contained HTML file with embedded CSS and JavaScript.\n\n" +
		"Requirements:\n- The entire game must be in one HTML file (inline styles and scripts)\n" +
		"- Use modern CSS (flexbox/grid, animations, transitions) for a polished look\n- Make it mobile-responsive\n" +
		"- Include a start screen, the game itself, and a results/score screen\n" +
		"- Use clean, readable fonts and a visually appealing color scheme\n" +
		"- All interactivity must work without any external dependencies\n" +
		"- Include sound feedback using the Web Audio API (short beeps for correct/incorrect)\n" +
		"- Add a progress indicator so the player knows how far along they are"

	builderSchema = `{"type":"object","properties":{"html":{"type":"string","description":"The complete HTML document including DOCTYPE, head, inline CSS, body, and inline JavaScript. This should be a fully self-contained single-file game."}},"required":["html"]}`
)

// ExampleFlow возвращает flow "Designer + Builder":
// user-input → agent (дизайн игры) → structured-output (HTML) → html-renderer → output.
func ExampleFlow() Flow {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	model := ModelConfig{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"}

	designer := model
	designer.SystemPrompt = designerPrompt
	designer.MessageTemplate = "Design an interactive educational game about: {{input}}"

	builder := model
	builder.SystemPrompt = builderPrompt
	builder.MessageTemplate = "Build the complete HTML game based on this design:\n\n{{input}}"

	return Flow{
		ID:   ExampleFlowID,
		Name: "Designer + Builder",
		Nodes: []Node{
			{ID: "user-input-1", Type: NodeTypeUserInput, Label: "Game Topic Input", Config: &EntryConfig{}},
			{ID: "agent-designer", Type: NodeTypeAgent, Label: "Game Designer", Config: &AgentConfig{ModelConfig: designer}},
			{ID: "structured-builder", Type: NodeTypeStructuredOutput, Label: "Game Builder", Config: &StructuredOutputConfig{
				ModelConfig:  builder,
				OutputSchema: builderSchema,
			}},
			{ID: "html-preview", Type: NodeTypeHTMLRenderer, Label: "Game Preview", Config: &HTMLRendererConfig{}},
			{ID: "output-1", Type: NodeTypeOutput, Label: "Game Output", Config: &OutputConfig{}},
		},
		Edges: []Edge{
			{ID: "e-input-designer", Source: "user-input-1", Target: "agent-designer"},
			{ID: "e-designer-builder", Source: "agent-designer", Target: "structured-builder"},
			{ID: "e-builder-preview", Source: "structured-builder", Target: "html-preview"},
			{ID: "e-preview-output", Source: "html-preview", Target: "output-1"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}
