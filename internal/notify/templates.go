package notify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Template names accepted by Template
const (
	TemplateBatchComplete    = "batch-complete"
	TemplateAnalysisComplete = "ai-complete"
	TemplateObjectDetected   = "object-detected"
	TemplateError            = "error"
	TemplateInstallPrompt    = "install-prompt"
)

// BatchCompleteOptions builds the batch-complete notification
func BatchCompleteOptions(batches, images int) Options {
	return Options{
		Title:              "📸 AI Batch Complete!",
		Body:               fmt.Sprintf("Processed %d batches with %d images. Tap to view results.", batches, images),
		Icon:               DefaultIcon,
		Tag:                TemplateBatchComplete,
		RequireInteraction: true,
		Actions: []Action{
			{Action: "view", Title: "👁️ View Gallery", Icon: DefaultIcon},
			{Action: "dismiss", Title: "✕ Dismiss", Icon: DefaultIcon},
		},
		Data: map[string]interface{}{
			"type":        TemplateBatchComplete,
			"batchCount":  batches,
			"totalImages": images,
		},
	}
}

// AnalysisCompleteOptions builds the analysis-complete notification
func AnalysisCompleteOptions(images int, elapsed time.Duration) Options {
	plural := ""
	if images > 1 {
		plural = "s"
	}
	seconds := int(math.Round(elapsed.Seconds()))

	return Options{
		Title:              "🤖 AI Analysis Complete!",
		Body:               fmt.Sprintf("Analyzed %d image%s in %ds. Results ready!", images, plural, seconds),
		Icon:               DefaultIcon,
		Tag:                TemplateAnalysisComplete,
		RequireInteraction: true,
		Actions: []Action{
			{Action: "view", Title: "📋 View Results", Icon: DefaultIcon},
			{Action: "speak", Title: "🔊 Listen", Icon: DefaultIcon},
		},
		Data: map[string]interface{}{
			"type":           TemplateAnalysisComplete,
			"imageCount":     images,
			"processingTime": elapsed.Milliseconds(),
		},
	}
}

// ObjectDetectedOptions builds the object-detected notification. Only the
// first three objects are named.
func ObjectDetectedOptions(objects []string, confidence float64) Options {
	shown := objects
	extra := ""
	if len(objects) > 3 {
		shown = objects[:3]
		extra = fmt.Sprintf(" +%d more", len(objects)-3)
	}

	return Options{
		Title: "🎯 Objects Detected!",
		Body: fmt.Sprintf("Found: %s%s (%d%% confidence)",
			strings.Join(shown, ", "), extra, int(math.Round(confidence*100))),
		Icon: DefaultIcon,
		Tag:  TemplateObjectDetected,
		Data: map[string]interface{}{
			"type":       TemplateObjectDetected,
			"objects":    objects,
			"confidence": confidence,
		},
	}
}

// ErrorOptions builds an alert. Actionable alerts stay until dismissed and
// offer retry and settings actions.
func ErrorOptions(msg string, actionable bool) Options {
	actions := []Action{}
	if actionable {
		actions = []Action{
			{Action: "retry", Title: "🔄 Retry", Icon: DefaultIcon},
			{Action: "settings", Title: "⚙️ Settings", Icon: DefaultIcon},
		}
	}

	return Options{
		Title:              "⚠️ AI Live Cam Alert",
		Body:               msg,
		Icon:               DefaultIcon,
		Tag:                TemplateError,
		RequireInteraction: actionable,
		Actions:            actions,
		Data: map[string]interface{}{
			"type":       TemplateError,
			"error":      msg,
			"actionable": actionable,
		},
	}
}

// InstallPromptOptions builds the install prompt
func InstallPromptOptions() Options {
	return Options{
		Title:              "📱 Install AI Live Cam",
		Body:               "Add to your home screen for the best experience with offline access!",
		Icon:               DefaultIcon,
		Tag:                TemplateInstallPrompt,
		RequireInteraction: true,
		Actions: []Action{
			{Action: "install", Title: "📥 Install App", Icon: DefaultIcon},
			{Action: "later", Title: "⏰ Maybe Later", Icon: DefaultIcon},
		},
		Data: map[string]interface{}{
			"type": TemplateInstallPrompt,
		},
	}
}

// NotifyBatchComplete sends the batch-complete notification
func (n *Notifier) NotifyBatchComplete(ctx context.Context, batches, images int) {
	n.Send(ctx, BatchCompleteOptions(batches, images))
}

// NotifyAnalysisComplete sends the analysis-complete notification
func (n *Notifier) NotifyAnalysisComplete(ctx context.Context, images int, elapsed time.Duration) {
	n.Send(ctx, AnalysisCompleteOptions(images, elapsed))
}

// NotifyObjectDetected sends the object-detected notification
func (n *Notifier) NotifyObjectDetected(ctx context.Context, objects []string, confidence float64) {
	n.Send(ctx, ObjectDetectedOptions(objects, confidence))
}

// NotifyError sends an alert
func (n *Notifier) NotifyError(ctx context.Context, msg string, actionable bool) {
	n.Send(ctx, ErrorOptions(msg, actionable))
}

// NotifyInstallPrompt sends the install prompt
func (n *Notifier) NotifyInstallPrompt(ctx context.Context) {
	n.Send(ctx, InstallPromptOptions())
}

// TemplateParams are the inputs of a named template
type TemplateParams struct {
	Batches    int      `json:"batches"`
	Images     int      `json:"images"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	Objects    []string `json:"objects"`
	Confidence float64  `json:"confidence"`
	Message    string   `json:"message"`
	Actionable bool     `json:"actionable"`
}

// Template builds the options of a named template
func Template(name string, p TemplateParams) (Options, error) {
	switch name {
	case TemplateBatchComplete:
		return BatchCompleteOptions(p.Batches, p.Images), nil
	case TemplateAnalysisComplete:
		return AnalysisCompleteOptions(p.Images, time.Duration(p.ElapsedMs)*time.Millisecond), nil
	case TemplateObjectDetected:
		return ObjectDetectedOptions(p.Objects, p.Confidence), nil
	case TemplateError:
		if p.Message == "" {
			return Options{}, fmt.Errorf("error template requires a message")
		}
		return ErrorOptions(p.Message, p.Actionable), nil
	case TemplateInstallPrompt:
		return InstallPromptOptions(), nil
	}
	return Options{}, fmt.Errorf("unknown notification template: %s", name)
}
