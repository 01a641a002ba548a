package generations

import "errors"

// Messages recorded on failed generations and returned to clients.
const (
	MessageGenerateFailed = "Failed to generate image"
	MessageSaveFailed     = "Failed to save generation"
	MessageUploadFailed   = "Failed to upload image"
	MessageUpdateFailed   = "Failed to update generation"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid generation request")
	// ErrUpstreamGeneration indicates the image generation API failed.
	ErrUpstreamGeneration = errors.New("image generation failed")
	// ErrPersistence indicates the generation record could not be created.
	ErrPersistence = errors.New("generation record not saved")
	// ErrUpload indicates the generated image could not be stored.
	ErrUpload = errors.New("image upload failed")
	// ErrURLResolution indicates the public URL could not be resolved or
	// written back to the record.
	ErrURLResolution = errors.New("generation url not recorded")
)

// ValidationError carries a message safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports ErrValidation as a match so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
