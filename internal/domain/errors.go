package domain

import "errors"

// Error kinds. Branch failures wrap one of these so callers can tell which
// branch produced them with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrBusy     = errors.New("a dispatch is already in flight")

	ErrCapabilityUnavailable = errors.New("speech recognition unavailable")
	ErrRecognition           = errors.New("speech recognition error")
	ErrValidation            = errors.New("validation error")
	ErrUpload                = errors.New("upload error")
	ErrInference             = errors.New("inference error")
	ErrSearch                = errors.New("search error")
	ErrWeather               = errors.New("weather error")
	ErrTranslation           = errors.New("translation error")
	ErrGeneration            = errors.New("generation error")
)
