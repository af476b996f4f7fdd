package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_GetPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"planner.md":         "Planner Content",
		"planner.b-site.md":  "Site B Content",
		"planner.a-units.md": "Units Content",
		"unrelated.md":       "Unrelated Content",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetPrompt(PromptPlanner)
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{"Planner Content", "Units Content", "Site B Content"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Unrelated Content") {
		t.Error("Prompt should not include files for other agents")
	}

	// Verify order
	if strings.Index(prompt, "Planner Content") >= strings.Index(prompt, "Units Content") {
		t.Error("Base prompt should come before extras")
	}
	if strings.Index(prompt, "Units Content") >= strings.Index(prompt, "Site B Content") {
		t.Error("Extras should be in name order")
	}
}

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager(t.TempDir())
	for _, name := range []string{PromptPlanner, PromptReplan, PromptSynthesizer} {
		p, err := pm.GetPrompt(name)
		if err != nil {
			t.Fatalf("GetPrompt(%s): %v", name, err)
		}
		if p != defaultPrompts[name] {
			t.Errorf("GetPrompt(%s) should fall back to the built-in prompt", name)
		}
	}

	if _, err := pm.GetPrompt("worker"); err == nil {
		t.Error("Expected an error for an unknown prompt")
	}
}
