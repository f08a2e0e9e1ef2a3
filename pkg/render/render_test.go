package render

import (
	"strings"
	"testing"
)

func TestRenderKnownTemplates(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		template string
		data     map[string]any
		contains string
	}{
		{
			template: "warning_issued.tmpl",
			data:     map[string]any{"Level": 2, "Reason": "spam", "ExpiresAt": "2026-04-01"},
			contains: "level 2 warning",
		},
		{
			template: "restriction_applied.tmpl",
			data:     map[string]any{"Type": "posting", "IsPermanent": true},
			contains: "permanent",
		},
		{
			template: "restriction_lifted.tmpl",
			data:     map[string]any{"Type": "posting", "Reason": "appeal approved"},
			contains: "lifted",
		},
		{
			template: "appeal_received.tmpl",
			data:     map[string]any{"AppealableType": "warning", "ReviewDeadline": "2026-04-08"},
			contains: "2026-04-08",
		},
		{
			template: "appeal_decided.tmpl",
			data:     map[string]any{"AppealableType": "restriction", "Decision": "approved", "Notes": "evidence checks out"},
			contains: "approved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			if !engine.Has(tt.template) {
				t.Fatalf("template %s not embedded", tt.template)
			}
			out, err := engine.Render(tt.template, tt.data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if !strings.Contains(out, tt.contains) {
				t.Fatalf("output %q does not contain %q", out, tt.contains)
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if engine.Has("nonexistent.tmpl") {
		t.Fatal("unexpected template")
	}
	if _, err := engine.Render("nonexistent.tmpl", nil); err == nil {
		t.Fatal("expected an error for an unknown template")
	}
}
