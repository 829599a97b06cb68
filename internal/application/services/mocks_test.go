package services_test

import (
	"context"
	"sync"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/providers"
	"github.com/dealsight/backend/internal/domain/repositories"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

// MockClientRepository is an in-memory ClientRepository
type MockClientRepository struct {
	mu      sync.Mutex
	clients map[string]*entities.Client
	order   []string

	// when linked, the "categorized" predicate also consults this repo,
	// mirroring the SQL join the real adapter does
	categorizations *MockCategorizationRepository

	createManyErr error
	createErr     map[string]error
}

func NewMockClientRepository() *MockClientRepository {
	return &MockClientRepository{
		clients:   make(map[string]*entities.Client),
		createErr: make(map[string]error),
	}
}

func (m *MockClientRepository) isCategorized(client *entities.Client) bool {
	if client.Categorization != nil {
		return true
	}
	if m.categorizations == nil {
		return false
	}
	m.categorizations.mu.Lock()
	defer m.categorizations.mu.Unlock()
	_, ok := m.categorizations.categorizations[client.ID]
	return ok
}

func (m *MockClientRepository) key(c *entities.Client) repositories.EmailPhoneKey {
	return repositories.EmailPhoneKey{Email: c.Email, Phone: c.Phone}
}

func (m *MockClientRepository) Create(ctx context.Context, client *entities.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.createErr[client.Email]; ok {
		return err
	}
	for _, existing := range m.clients {
		if m.key(existing) == m.key(client) {
			return apperrors.NewConflictError("client with this email and phone already exists")
		}
	}
	m.clients[client.ID] = client
	m.order = append(m.order, client.ID)
	return nil
}

func (m *MockClientRepository) CreateManySkipDuplicates(ctx context.Context, clients []*entities.Client) (int, error) {
	if m.createManyErr != nil {
		return 0, m.createManyErr
	}
	inserted := 0
	for _, client := range clients {
		if err := m.Create(ctx, client); err == nil {
			inserted++
		}
	}
	return inserted, nil
}

func (m *MockClientRepository) GetByID(ctx context.Context, id string) (*entities.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[id]; ok {
		return client, nil
	}
	return nil, apperrors.NewNotFoundError("client not found")
}

func (m *MockClientRepository) FindByEmailPhonePairs(ctx context.Context, keys []repositories.EmailPhoneKey) ([]repositories.EmailPhoneKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := make(map[repositories.EmailPhoneKey]bool, len(m.clients))
	for _, client := range m.clients {
		known[m.key(client)] = true
	}
	var existing []repositories.EmailPhoneKey
	for _, key := range keys {
		if known[key] {
			existing = append(existing, key)
		}
	}
	return existing, nil
}

func (m *MockClientRepository) ListUncategorizedByUpload(ctx context.Context, uploadID string) ([]*entities.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*entities.Client
	for _, id := range m.order {
		client := m.clients[id]
		if client.UploadID == uploadID && !m.isCategorized(client) {
			result = append(result, client)
		}
	}
	return result, nil
}

func (m *MockClientRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*entities.Client
	for _, id := range ids {
		if client, ok := m.clients[id]; ok {
			result = append(result, client)
		}
	}
	return result, nil
}

func (m *MockClientRepository) CountByUpload(ctx context.Context, uploadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, client := range m.clients {
		if client.UploadID == uploadID {
			count++
		}
	}
	return count, nil
}

func (m *MockClientRepository) CountCategorizedByUpload(ctx context.Context, uploadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, client := range m.clients {
		if client.UploadID == uploadID && m.isCategorized(client) {
			count++
		}
	}
	return count, nil
}

func (m *MockClientRepository) CountCategorized(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, client := range m.clients {
		if m.isCategorized(client) {
			count++
		}
	}
	return count, nil
}

func (m *MockClientRepository) ListTrainingSamples(ctx context.Context) ([]*entities.TrainingSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var samples []*entities.TrainingSample
	for _, id := range m.order {
		client := m.clients[id]
		if !m.isCategorized(client) {
			continue
		}
		data := entities.CategoryData{}
		if client.Categorization != nil {
			data = client.Categorization.Data
		} else if categorization, err := m.categorizations.GetByClientID(ctx, client.ID); err == nil {
			data = categorization.Data
		}
		samples = append(samples, &entities.TrainingSample{
			ClientID: client.ID,
			Data:     data,
			Closed:   client.Closed,
		})
	}
	return samples, nil
}

// markCategorized attaches a categorization directly, bypassing the worker
func (m *MockClientRepository) markCategorized(clientID string, data entities.CategoryData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[clientID]; ok {
		client.Categorization = &entities.Categorization{ClientID: clientID, Data: data}
	}
}

// MockUploadRepository is an in-memory UploadRepository
type MockUploadRepository struct {
	mu      sync.Mutex
	uploads map[string]*entities.Upload
}

func NewMockUploadRepository() *MockUploadRepository {
	return &MockUploadRepository{uploads: make(map[string]*entities.Upload)}
}

func (m *MockUploadRepository) Create(ctx context.Context, upload *entities.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *upload
	m.uploads[upload.ID] = &copied
	return nil
}

func (m *MockUploadRepository) GetByID(ctx context.Context, id string) (*entities.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if upload, ok := m.uploads[id]; ok {
		copied := *upload
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("upload not found")
}

func (m *MockUploadRepository) Update(ctx context.Context, upload *entities.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.uploads[upload.ID]
	if !ok {
		return apperrors.NewNotFoundError("upload not found")
	}
	if current.Status.Terminal() {
		return apperrors.NewConflictError("upload is already in a terminal status")
	}
	copied := *upload
	m.uploads[upload.ID] = &copied
	return nil
}

func (m *MockUploadRepository) List(ctx context.Context, filter repositories.UploadFilter) ([]*entities.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entities.Upload
	for _, upload := range m.uploads {
		if filter.Status == "" || upload.Status == filter.Status {
			copied := *upload
			result = append(result, &copied)
		}
	}
	return result, nil
}

// MockCategorizationRepository is an in-memory CategorizationRepository
type MockCategorizationRepository struct {
	mu              sync.Mutex
	categorizations map[string]*entities.Categorization
	createErr       error
}

func NewMockCategorizationRepository() *MockCategorizationRepository {
	return &MockCategorizationRepository{categorizations: make(map[string]*entities.Categorization)}
}

func (m *MockCategorizationRepository) Create(ctx context.Context, categorization *entities.Categorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.categorizations[categorization.ClientID]; ok {
		return apperrors.NewConflictError("client is already categorized")
	}
	m.categorizations[categorization.ClientID] = categorization
	return nil
}

func (m *MockCategorizationRepository) GetByClientID(ctx context.Context, clientID string) (*entities.Categorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if categorization, ok := m.categorizations[clientID]; ok {
		return categorization, nil
	}
	return nil, apperrors.NewNotFoundError("client has no categorization")
}

func (m *MockCategorizationRepository) GetByClientIDs(ctx context.Context, clientIDs []string) (map[string]*entities.Categorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*entities.Categorization)
	for _, id := range clientIDs {
		if categorization, ok := m.categorizations[id]; ok {
			result[id] = categorization
		}
	}
	return result, nil
}

func (m *MockCategorizationRepository) CountByField(ctx context.Context, field string) ([]repositories.FieldCount, error) {
	return nil, nil
}

// MockModelRepository is an in-memory PredictionModelRepository
type MockModelRepository struct {
	mu     sync.Mutex
	models map[string]*entities.PredictionModel
	order  []string
}

func NewMockModelRepository() *MockModelRepository {
	return &MockModelRepository{models: make(map[string]*entities.PredictionModel)}
}

func (m *MockModelRepository) Create(ctx context.Context, model *entities.PredictionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *model
	m.models[model.ID] = &copied
	m.order = append(m.order, model.ID)
	return nil
}

func (m *MockModelRepository) GetByID(ctx context.Context, id string) (*entities.PredictionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if model, ok := m.models[id]; ok {
		copied := *model
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("prediction model not found")
}

func (m *MockModelRepository) Update(ctx context.Context, model *entities.PredictionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[model.ID]; !ok {
		return apperrors.NewNotFoundError("prediction model not found")
	}
	copied := *model
	m.models[model.ID] = &copied
	return nil
}

func (m *MockModelRepository) GetLatest(ctx context.Context) (*entities.PredictionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil, apperrors.NewNotFoundError("no prediction models exist")
	}
	copied := *m.models[m.order[len(m.order)-1]]
	return &copied, nil
}

func (m *MockModelRepository) GetLatestTrained(ctx context.Context) (*entities.PredictionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if model := m.models[m.order[i]]; model.Trained {
			copied := *model
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("no trained model exists")
}

func (m *MockModelRepository) FindTraining(ctx context.Context) (*entities.PredictionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, model := range m.models {
		if model.IsTraining {
			copied := *model
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("no training in progress")
}

// MockOracle is a canned CategorizationProvider
type MockOracle struct {
	mu    sync.Mutex
	data  *entities.CategoryData
	err   error
	calls int
}

func (m *MockOracle) ExtractCategories(ctx context.Context, transcription string) (*entities.CategoryData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	copied := *m.data
	return &copied, nil
}

func (m *MockOracle) Provider() string      { return "mock" }
func (m *MockOracle) Model() string         { return "mock-model" }
func (m *MockOracle) PromptVersion() string { return "v-test" }

// MockCacheProvider is an in-memory CacheProvider
type MockCacheProvider struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{data: make(map[string][]byte)}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, apperrors.NewNotFoundError("key not found")
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *MockCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// MockEventBus records published events
type MockEventBus struct {
	mu        sync.Mutex
	published []*entities.PipelineEvent
	channels  []string
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.PipelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	m.channels = append(m.channels, channel)
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PipelineEvent, error) {
	ch := make(chan *entities.PipelineEvent)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error { return nil }
func (m *MockEventBus) Close() error                                          { return nil }

func (m *MockEventBus) eventTypes() []entities.PipelineEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]entities.PipelineEventType, len(m.published))
	for i, event := range m.published {
		types[i] = event.EventType
	}
	return types
}

var _ providers.CategorizationProvider = (*MockOracle)(nil)
var _ providers.CacheProvider = (*MockCacheProvider)(nil)
var _ providers.EventBus = (*MockEventBus)(nil)
var _ repositories.ClientRepository = (*MockClientRepository)(nil)
var _ repositories.UploadRepository = (*MockUploadRepository)(nil)
var _ repositories.CategorizationRepository = (*MockCategorizationRepository)(nil)
var _ repositories.PredictionModelRepository = (*MockModelRepository)(nil)
