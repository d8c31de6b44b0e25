package api

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

var cameraIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError represents a validation error with field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ValidateSettings validates detection settings sent by a client
func ValidateSettings(s detection.Settings) ValidationErrors {
	errs := make(ValidationErrors, 0)
	if !detection.ValidConfidence(s.MinConfidence) {
		errs = append(errs, ValidationError{
			Field:   "min_confidence",
			Message: "confidence threshold must be between 0 and 1",
		})
	}
	return errs
}

// ValidateNotification validates a custom notification request
func ValidateNotification(opts notify.Options) ValidationErrors {
	errs := make(ValidationErrors, 0)

	if strings.TrimSpace(opts.Title) == "" {
		errs = append(errs, ValidationError{
			Field:   "title",
			Message: "notification title is required",
		})
	} else if len(opts.Title) > 100 {
		errs = append(errs, ValidationError{
			Field:   "title",
			Message: "notification title must be less than 100 characters",
		})
	}

	if len(opts.Body) > 1000 {
		errs = append(errs, ValidationError{
			Field:   "body",
			Message: "notification body must be less than 1000 characters",
		})
	}

	for i, a := range opts.Actions {
		if a.Action == "" || a.Title == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("actions[%d]", i),
				Message: "action and title are required",
			})
		}
	}

	return errs
}

// ValidateCameraID validates a camera ID format
func ValidateCameraID(id string) error {
	if id == "" {
		return fmt.Errorf("camera ID is required")
	}

	// ID should be alphanumeric with underscores
	if !cameraIDPattern.MatchString(id) {
		return fmt.Errorf("camera ID must contain only letters, numbers, underscores, and hyphens")
	}

	if len(id) > 50 {
		return fmt.Errorf("camera ID must be less than 50 characters")
	}

	return nil
}
