package notify

import (
	"testing"
	"time"
)

func TestTemplates(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		title string
		body  string
		tag   string
	}{
		{
			name:  "batch complete",
			opts:  BatchCompleteOptions(3, 42),
			title: "📸 AI Batch Complete!",
			body:  "Processed 3 batches with 42 images. Tap to view results.",
			tag:   "batch-complete",
		},
		{
			name:  "analysis single image",
			opts:  AnalysisCompleteOptions(1, 1400*time.Millisecond),
			title: "🤖 AI Analysis Complete!",
			body:  "Analyzed 1 image in 1s. Results ready!",
			tag:   "ai-complete",
		},
		{
			name:  "analysis many images",
			opts:  AnalysisCompleteOptions(5, 2500*time.Millisecond),
			title: "🤖 AI Analysis Complete!",
			body:  "Analyzed 5 images in 3s. Results ready!",
			tag:   "ai-complete",
		},
		{
			name:  "objects under limit",
			opts:  ObjectDetectedOptions([]string{"person", "dog"}, 0.874),
			title: "🎯 Objects Detected!",
			body:  "Found: person, dog (87% confidence)",
			tag:   "object-detected",
		},
		{
			name:  "objects over limit",
			opts:  ObjectDetectedOptions([]string{"person", "dog", "car", "cat", "bus"}, 0.5),
			title: "🎯 Objects Detected!",
			body:  "Found: person, dog, car +2 more (50% confidence)",
			tag:   "object-detected",
		},
		{
			name:  "error",
			opts:  ErrorOptions("Camera disconnected", false),
			title: "⚠️ AI Live Cam Alert",
			body:  "Camera disconnected",
			tag:   "error",
		},
		{
			name:  "install prompt",
			opts:  InstallPromptOptions(),
			title: "📱 Install AI Live Cam",
			body:  "Add to your home screen for the best experience with offline access!",
			tag:   "install-prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.opts.Title != tt.title {
				t.Errorf("Title = %q, want %q", tt.opts.Title, tt.title)
			}
			if tt.opts.Body != tt.body {
				t.Errorf("Body = %q, want %q", tt.opts.Body, tt.body)
			}
			if tt.opts.Tag != tt.tag {
				t.Errorf("Tag = %q, want %q", tt.opts.Tag, tt.tag)
			}
			if tt.opts.Data["type"] != tt.tag {
				t.Errorf("Data type = %v, want %q", tt.opts.Data["type"], tt.tag)
			}
		})
	}
}

func TestErrorOptions_Actionable(t *testing.T) {
	opts := ErrorOptions("Model failed to load", true)
	if !opts.RequireInteraction {
		t.Error("Actionable alert should require interaction")
	}
	if len(opts.Actions) != 2 || opts.Actions[0].Action != "retry" || opts.Actions[1].Action != "settings" {
		t.Errorf("Unexpected actions: %+v", opts.Actions)
	}

	plain := ErrorOptions("Model failed to load", false)
	if plain.RequireInteraction || len(plain.Actions) != 0 {
		t.Errorf("Plain alert should have no actions, got %+v", plain.Actions)
	}
}

func TestTemplatesAreDeterministic(t *testing.T) {
	a := ObjectDetectedOptions([]string{"a", "b", "c", "d"}, 0.66)
	b := ObjectDetectedOptions([]string{"a", "b", "c", "d"}, 0.66)
	if a.Title != b.Title || a.Body != b.Body {
		t.Error("Same inputs must produce the same strings")
	}
}

func TestTemplate_ByName(t *testing.T) {
	opts, err := Template(TemplateObjectDetected, TemplateParams{Objects: []string{"cat"}, Confidence: 0.9})
	if err != nil {
		t.Fatalf("Template failed: %v", err)
	}
	if opts.Body != "Found: cat (90% confidence)" {
		t.Errorf("Unexpected body: %q", opts.Body)
	}

	opts, err = Template(TemplateAnalysisComplete, TemplateParams{Images: 2, ElapsedMs: 4000})
	if err != nil {
		t.Fatalf("Template failed: %v", err)
	}
	if opts.Body != "Analyzed 2 images in 4s. Results ready!" {
		t.Errorf("Unexpected body: %q", opts.Body)
	}

	if _, err := Template(TemplateError, TemplateParams{}); err == nil {
		t.Error("Error template without a message should fail")
	}
	if _, err := Template("bogus", TemplateParams{}); err == nil {
		t.Error("Unknown template should fail")
	}
}
