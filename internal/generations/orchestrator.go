// Package generations drives a prompt through image generation, object
// storage and the generation record.
package generations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kanojo/studio/internal/logging"
	"github.com/kanojo/studio/internal/models"
)

// ContentTypePNG is the content type of every uploaded image.
const ContentTypePNG = "image/png"

// Generator produces an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (models.Image, error)
}

// Store persists generation records.
type Store interface {
	Create(ctx context.Context, generation models.Generation) (models.Generation, error)
	MarkFailed(ctx context.Context, id, message string) error
	MarkCompleted(ctx context.Context, id, url string) (models.Generation, error)
}

// ObjectStorage stores generated images. Upload must not overwrite an
// existing object.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) (string, error)
}

// Observer is notified of every terminal outcome.
type Observer interface {
	ObserveGeneration(outcome string)
}

// Outcome labels reported to the Observer.
const (
	OutcomeCompleted      = "completed"
	OutcomeInvalid        = "invalid"
	OutcomeGenerateFailed = "generate_failed"
	OutcomeSaveFailed     = "save_failed"
	OutcomeUploadFailed   = "upload_failed"
	OutcomeUpdateFailed   = "update_failed"
)

// Result is returned to the client after a successful generation.
type Result struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Orchestrator runs the generation pipeline. Steps run strictly in order and
// nothing is retried.
type Orchestrator struct {
	generator Generator
	store     Store
	objects   ObjectStorage
	observer  Observer
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator wires the pipeline collaborators.
func NewOrchestrator(generator Generator, store Store, objects ObjectStorage) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		store:     store,
		objects:   objects,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// WithObserver sets the outcome observer.
func (o *Orchestrator) WithObserver(observer Observer) *Orchestrator {
	o.observer = observer
	return o
}

// WithTimeout bounds the image generation call. Zero disables the bound.
func (o *Orchestrator) WithTimeout(timeout time.Duration) *Orchestrator {
	o.timeout = timeout
	return o
}

// ObjectKey is the storage path of a generation's image.
func ObjectKey(userID, generationID string) string {
	return fmt.Sprintf("%s/%s.png", userID, generationID)
}

// Generate validates req and runs it through the pipeline for userID.
// Returned errors match one of the package sentinels.
func (o *Orchestrator) Generate(ctx context.Context, userID string, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		o.observe(OutcomeInvalid)
		return Result{}, err
	}

	logger := logging.FromContext(ctx)

	image, err := o.generate(ctx, req.Prompt)
	if err != nil {
		o.observe(OutcomeGenerateFailed)
		o.recordFailure(ctx, userID, req.Prompt)
		return Result{}, fmt.Errorf("%w: %w", ErrUpstreamGeneration, err)
	}

	record, err := o.create(ctx, models.Generation{
		ID:        o.newID(),
		UserID:    userID,
		Prompt:    req.Prompt,
		Status:    models.GenerationStatusPending,
		CreatedAt: o.now(),
	})
	if err != nil {
		o.observe(OutcomeSaveFailed)
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	key := ObjectKey(userID, record.ID)
	if err := o.upload(ctx, key, image); err != nil {
		o.observe(OutcomeUploadFailed)
		o.markFailed(ctx, record.ID, MessageUploadFailed)
		return Result{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	completed, err := o.complete(ctx, record.ID, key)
	if err != nil {
		o.observe(OutcomeUpdateFailed)
		o.markFailed(ctx, record.ID, MessageUpdateFailed)
		return Result{}, fmt.Errorf("%w: %w", ErrURLResolution, err)
	}
	if completed.URL == nil {
		o.observe(OutcomeUpdateFailed)
		return Result{}, fmt.Errorf("%w: record %s has no url", ErrURLResolution, record.ID)
	}

	o.observe(OutcomeCompleted)
	logger.Info("generation completed", "generationId", completed.ID, "key", key)

	return Result{
		ID:        completed.ID,
		URL:       *completed.URL,
		Prompt:    completed.Prompt,
		CreatedAt: completed.CreatedAt,
	}, nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (models.Image, error) {
	ctx, span := logging.StartSpan(ctx, "generation.generate")
	defer span.End()

	if o.generator == nil {
		err := errors.New("image generator unavailable")
		span.Fail(err)
		return models.Image{}, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	image, err := o.generator.Generate(ctx, prompt)
	if err == nil && len(image.Data) == 0 {
		err = errors.New("empty image payload")
	}
	span.Fail(err)
	return image, err
}

func (o *Orchestrator) create(ctx context.Context, generation models.Generation) (models.Generation, error) {
	ctx, span := logging.StartSpan(ctx, "generation.persist")
	defer span.End()

	if o.store == nil {
		err := errors.New("generation store unavailable")
		span.Fail(err)
		return models.Generation{}, err
	}

	record, err := o.store.Create(ctx, generation)
	span.Fail(err)
	return record, err
}

func (o *Orchestrator) upload(ctx context.Context, key string, image models.Image) error {
	ctx, span := logging.StartSpan(ctx, "generation.upload")
	defer span.End()

	if o.objects == nil {
		err := errors.New("object storage unavailable")
		span.Fail(err)
		return err
	}

	err := o.objects.Upload(ctx, key, image.Data, ContentTypePNG)
	span.Fail(err)
	return err
}

func (o *Orchestrator) complete(ctx context.Context, id, key string) (models.Generation, error) {
	ctx, span := logging.StartSpan(ctx, "generation.complete")
	defer span.End()

	url, err := o.objects.PublicURL(key)
	if err != nil {
		span.Fail(err)
		return models.Generation{}, fmt.Errorf("resolve public url: %w", err)
	}

	record, err := o.store.MarkCompleted(ctx, id, url)
	if err != nil {
		span.Fail(err)
		return models.Generation{}, fmt.Errorf("update generation: %w", err)
	}
	return record, nil
}

// recordFailure stores a failed record for a prompt whose image could not be
// generated. Failures here are logged and otherwise ignored.
func (o *Orchestrator) recordFailure(ctx context.Context, userID, prompt string) {
	if o.store == nil {
		return
	}
	message := MessageGenerateFailed
	_, err := o.store.Create(ctx, models.Generation{
		ID:        o.newID(),
		UserID:    userID,
		Prompt:    prompt,
		Status:    models.GenerationStatusFailed,
		Error:     &message,
		CreatedAt: o.now(),
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to record generation failure", "error", err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, id, message string) {
	if err := o.store.MarkFailed(ctx, id, message); err != nil {
		logging.FromContext(ctx).Error("failed to mark generation failed", "generationId", id, "error", err)
	}
}

func (o *Orchestrator) observe(outcome string) {
	if o.observer != nil {
		o.observer.ObserveGeneration(outcome)
	}
}
