package generations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kanojo/studio/internal/models"
)

type generatorStub struct {
	calls int
	err   error
}

func (g *generatorStub) Generate(_ context.Context, prompt string) (models.Image, error) {
	g.calls++
	if g.err != nil {
		return models.Image{}, g.err
	}
	return models.Image{Data: []byte("png:" + prompt), MIMEType: ContentTypePNG}, nil
}

type generationStoreStub struct {
	mu          sync.Mutex
	records     map[string]models.Generation
	order       []string
	createErr   error
	completeErr error
	calls       int
}

func newGenerationStoreStub() *generationStoreStub {
	return &generationStoreStub{records: make(map[string]models.Generation)}
}

func (s *generationStoreStub) Create(_ context.Context, generation models.Generation) (models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.createErr != nil {
		return models.Generation{}, s.createErr
	}
	s.records[generation.ID] = generation
	s.order = append(s.order, generation.ID)
	return generation, nil
}

func (s *generationStoreStub) MarkFailed(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	record, ok := s.records[id]
	if !ok {
		return errors.New("not found")
	}
	record.Status = models.GenerationStatusFailed
	record.Error = &message
	record.URL = nil
	s.records[id] = record
	return nil
}

func (s *generationStoreStub) MarkCompleted(_ context.Context, id, url string) (models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.completeErr != nil {
		return models.Generation{}, s.completeErr
	}
	record, ok := s.records[id]
	if !ok {
		return models.Generation{}, errors.New("not found")
	}
	record.Status = models.GenerationStatusCompleted
	record.URL = &url
	s.records[id] = record
	return record, nil
}

func (s *generationStoreStub) only(t *testing.T) models.Generation {
	t.Helper()
	if len(s.order) != 1 {
		t.Fatalf("expected exactly one record got %d", len(s.order))
	}
	return s.records[s.order[0]]
}

type objectStorageStub struct {
	uploads   map[string][]byte
	uploadErr error
	urlErr    error
	calls     int
}

func newObjectStorageStub() *objectStorageStub {
	return &objectStorageStub{uploads: make(map[string][]byte)}
}

func (s *objectStorageStub) Upload(_ context.Context, key string, data []byte, contentType string) error {
	s.calls++
	if s.uploadErr != nil {
		return s.uploadErr
	}
	if contentType != ContentTypePNG {
		return fmt.Errorf("unexpected content type %s", contentType)
	}
	if _, exists := s.uploads[key]; exists {
		return errors.New("object exists")
	}
	s.uploads[key] = data
	return nil
}

func (s *objectStorageStub) PublicURL(key string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://cdn.example.com/generations/" + key, nil
}

type observerStub struct {
	outcomes []string
}

func (o *observerStub) ObserveGeneration(outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

func newTestOrchestrator(gen *generatorStub, store *generationStoreStub, objects *objectStorageStub) (*Orchestrator, *observerStub) {
	observer := &observerStub{}
	orchestrator := NewOrchestrator(gen, store, objects).WithObserver(observer)
	orchestrator.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return orchestrator, observer
}

func TestOrchestratorValidationMakesNoCalls(t *testing.T) {
	cases := map[string]struct {
		prompt  string
		message string
	}{
		"empty":    {prompt: "", message: "Prompt is required"},
		"too long": {prompt: strings.Repeat("a", MaxPromptLength+1), message: "Prompt must be less than 500 characters"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &generatorStub{}
			store := newGenerationStoreStub()
			objects := newObjectStorageStub()
			orchestrator, observer := newTestOrchestrator(gen, store, objects)

			_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: tc.prompt})

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error got %v", err)
			}
			if validationErr.Message != tc.message {
				t.Fatalf("expected message %q got %q", tc.message, validationErr.Message)
			}
			if gen.calls+store.calls+objects.calls != 0 {
				t.Fatalf("expected no collaborator calls, got generator=%d store=%d storage=%d", gen.calls, store.calls, objects.calls)
			}
			if len(observer.outcomes) != 1 || observer.outcomes[0] != OutcomeInvalid {
				t.Fatalf("unexpected outcomes %v", observer.outcomes)
			}
		})
	}
}

func TestOrchestratorPromptLengthCountsCharacters(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(&generatorStub{}, newGenerationStoreStub(), newObjectStorageStub())

	prompt := strings.Repeat("é", MaxPromptLength)
	if _, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: prompt}); err != nil {
		t.Fatalf("expected %d multi-byte characters to be accepted, got %v", MaxPromptLength, err)
	}
}

func TestOrchestratorSuccess(t *testing.T) {
	store := newGenerationStoreStub()
	objects := newObjectStorageStub()
	orchestrator, observer := newTestOrchestrator(&generatorStub{}, store, objects)

	result, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "a portrait"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	record := store.only(t)
	if record.Status != models.GenerationStatusCompleted || record.URL == nil {
		t.Fatalf("expected completed record with url, got %+v", record)
	}
	if result.ID != record.ID || result.URL != *record.URL || result.Prompt != "a portrait" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.CreatedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected created_at %s", result.CreatedAt)
	}

	key := ObjectKey("user-1", record.ID)
	if _, ok := objects.uploads[key]; !ok {
		t.Fatalf("expected upload at %s, got %v", key, objects.uploads)
	}
	if !strings.HasSuffix(result.URL, key) {
		t.Fatalf("expected url to reference %s got %s", key, result.URL)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != OutcomeCompleted {
		t.Fatalf("unexpected outcomes %v", observer.outcomes)
	}
}

func TestOrchestratorGenerationFailure(t *testing.T) {
	store := newGenerationStoreStub()
	objects := newObjectStorageStub()
	orchestrator, _ := newTestOrchestrator(&generatorStub{err: errors.New("quota exceeded")}, store, objects)

	_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "a portrait"})
	if !errors.Is(err, ErrUpstreamGeneration) {
		t.Fatalf("expected ErrUpstreamGeneration got %v", err)
	}

	record := store.only(t)
	if record.Status != models.GenerationStatusFailed || record.Error == nil || *record.Error != MessageGenerateFailed {
		t.Fatalf("expected failed record, got %+v", record)
	}
	if objects.calls != 0 {
		t.Fatalf("expected no storage calls got %d", objects.calls)
	}
}

func TestOrchestratorPersistenceFailure(t *testing.T) {
	store := newGenerationStoreStub()
	store.createErr = errors.New("connection reset")
	objects := newObjectStorageStub()
	orchestrator, _ := newTestOrchestrator(&generatorStub{}, store, objects)

	_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "a portrait"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence got %v", err)
	}
	if objects.calls != 0 {
		t.Fatalf("expected no upload after persistence failure, got %d calls", objects.calls)
	}
}

func TestOrchestratorUploadFailure(t *testing.T) {
	store := newGenerationStoreStub()
	objects := newObjectStorageStub()
	objects.uploadErr = errors.New("bucket unavailable")
	orchestrator, _ := newTestOrchestrator(&generatorStub{}, store, objects)

	_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "a portrait"})
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload got %v", err)
	}

	record := store.only(t)
	if record.Status != models.GenerationStatusFailed || record.URL != nil {
		t.Fatalf("expected failed record without url, got %+v", record)
	}
	if record.Error == nil || *record.Error != MessageUploadFailed {
		t.Fatalf("expected upload failure message, got %+v", record.Error)
	}
}

func TestOrchestratorURLResolutionFailure(t *testing.T) {
	cases := map[string]func(*generationStoreStub, *objectStorageStub){
		"public url": func(_ *generationStoreStub, o *objectStorageStub) { o.urlErr = errors.New("empty key") },
		"update":     func(s *generationStoreStub, _ *objectStorageStub) { s.completeErr = errors.New("timeout") },
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			store := newGenerationStoreStub()
			objects := newObjectStorageStub()
			setup(store, objects)
			orchestrator, _ := newTestOrchestrator(&generatorStub{}, store, objects)

			_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "a portrait"})
			if !errors.Is(err, ErrURLResolution) {
				t.Fatalf("expected ErrURLResolution got %v", err)
			}
			record := store.only(t)
			if record.Status != models.GenerationStatusFailed || record.Error == nil || *record.Error != MessageUpdateFailed {
				t.Fatalf("expected record marked failed, got %+v", record)
			}
		})
	}
}

func TestOrchestratorDoesNotDeduplicate(t *testing.T) {
	store := newGenerationStoreStub()
	objects := newObjectStorageStub()
	orchestrator, _ := newTestOrchestrator(&generatorStub{}, store, objects)

	first, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "same prompt"})
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "same prompt"})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if first.ID == second.ID || first.URL == second.URL {
		t.Fatalf("expected distinct records, got %+v and %+v", first, second)
	}
	if len(store.order) != 2 || len(objects.uploads) != 2 {
		t.Fatalf("expected two records and uploads, got %d and %d", len(store.order), len(objects.uploads))
	}
}

func TestOrchestratorTimeoutBoundsGeneration(t *testing.T) {
	gen := &blockingGenerator{}
	store := newGenerationStoreStub()
	orchestrator := NewOrchestrator(gen, store, newObjectStorageStub()).WithTimeout(10 * time.Millisecond)

	_, err := orchestrator.Generate(context.Background(), "user-1", Request{Prompt: "slow"})
	if !errors.Is(err, ErrUpstreamGeneration) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded generation failure, got %v", err)
	}
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (models.Image, error) {
	<-ctx.Done()
	return models.Image{}, ctx.Err()
}
