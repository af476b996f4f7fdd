package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/plantdoc/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/xeipuuv/gojsonschema"
)

// Completer is the one-call text completion boundary shared by the
// planner, replan and synthesizer agents.
type Completer struct {
	Model   llms.Model
	Timeout time.Duration
	Logger  *observability.Logger
	Agent   string
}

func (c Completer) complete(ctx context.Context, runID, system, prompt string) (string, error) {
	if c.Model == nil {
		return "", fmt.Errorf("%s: no language model configured", c.Agent)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	resp, err := c.Model.GenerateContent(ctx, messages, llms.WithTemperature(0.2))
	if err != nil {
		c.Logger.LogLLM(runID, c.Agent, prompt, "", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("model returned no choices")
		c.Logger.LogLLM(runID, c.Agent, prompt, "", err)
		return "", err
	}
	content := resp.Choices[0].Content
	c.Logger.LogLLM(runID, c.Agent, prompt, content, nil)
	return content, nil
}

// extractJSON returns the first JSON object in a model reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// decodeValidated checks doc against schema before unmarshalling into v.
func decodeValidated(schema, doc string, v any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}
	return json.Unmarshal([]byte(doc), v)
}
