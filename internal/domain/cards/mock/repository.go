package mock

import (
	context "context"
	reflect "reflect"
	time "time"

	models "github.com/swapcard/marketplace/internal/gateways/database/models"
	storage "github.com/swapcard/marketplace/internal/gateways/storage"
	gomock "go.uber.org/mock/gomock"
)

// MockRepository is a mock of Repository interface.
type MockRepository struct {
	ctrl     *gomock.Controller
	recorder *MockRepositoryMockRecorder
	isgomock struct{}
}

// MockRepositoryMockRecorder is the mock recorder for MockRepository.
type MockRepositoryMockRecorder struct {
	mock *MockRepository
}

// NewMockRepository creates a new mock instance.
func NewMockRepository(ctrl *gomock.Controller) *MockRepository {
	mock := &MockRepository{ctrl: ctrl}
	mock.recorder = &MockRepositoryMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRepository) EXPECT() *MockRepositoryMockRecorder {
	return m.recorder
}

// Create mocks base method.
func (m *MockRepository) Create(ctx context.Context, l *models.CardListing) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Create", ctx, l)
	ret0, _ := ret[0].(error)
	return ret0
}

// Create indicates an expected call of Create.
func (mr *MockRepositoryMockRecorder) Create(ctx, l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Create", reflect.TypeOf((*MockRepository)(nil).Create), ctx, l)
}

// Delete mocks base method.
func (m *MockRepository) Delete(ctx context.Context, id string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Delete", ctx, id)
	ret0, _ := ret[0].(error)
	return ret0
}

// Delete indicates an expected call of Delete.
func (mr *MockRepositoryMockRecorder) Delete(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Delete", reflect.TypeOf((*MockRepository)(nil).Delete), ctx, id)
}

// GetByID mocks base method.
func (m *MockRepository) GetByID(ctx context.Context, id string) (*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetByID", ctx, id)
	ret0, _ := ret[0].(*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetByID indicates an expected call of GetByID.
func (mr *MockRepositoryMockRecorder) GetByID(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetByID", reflect.TypeOf((*MockRepository)(nil).GetByID), ctx, id)
}

// ListByOwner mocks base method.
func (m *MockRepository) ListByOwner(ctx context.Context, uid string) ([]*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListByOwner", ctx, uid)
	ret0, _ := ret[0].([]*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListByOwner indicates an expected call of ListByOwner.
func (mr *MockRepositoryMockRecorder) ListByOwner(ctx, uid any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListByOwner", reflect.TypeOf((*MockRepository)(nil).ListByOwner), ctx, uid)
}

// ListCreatedSince mocks base method.
func (m *MockRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListCreatedSince", ctx, since)
	ret0, _ := ret[0].([]*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListCreatedSince indicates an expected call of ListCreatedSince.
func (mr *MockRepositoryMockRecorder) ListCreatedSince(ctx, since any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListCreatedSince", reflect.TypeOf((*MockRepository)(nil).ListCreatedSince), ctx, since)
}

// ListOpen mocks base method.
func (m *MockRepository) ListOpen(ctx context.Context, excludeUID string, now time.Time) ([]*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListOpen", ctx, excludeUID, now)
	ret0, _ := ret[0].([]*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListOpen indicates an expected call of ListOpen.
func (mr *MockRepositoryMockRecorder) ListOpen(ctx, excludeUID, now any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListOpen", reflect.TypeOf((*MockRepository)(nil).ListOpen), ctx, excludeUID, now)
}

// Update mocks base method.
func (m *MockRepository) Update(ctx context.Context, l *models.CardListing) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Update", ctx, l)
	ret0, _ := ret[0].(error)
	return ret0
}

// Update indicates an expected call of Update.
func (mr *MockRepositoryMockRecorder) Update(ctx, l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Update", reflect.TypeOf((*MockRepository)(nil).Update), ctx, l)
}

// MockImageStore is a mock of ImageStore interface.
type MockImageStore struct {
	ctrl     *gomock.Controller
	recorder *MockImageStoreMockRecorder
	isgomock struct{}
}

// MockImageStoreMockRecorder is the mock recorder for MockImageStore.
type MockImageStoreMockRecorder struct {
	mock *MockImageStore
}

// NewMockImageStore creates a new mock instance.
func NewMockImageStore(ctrl *gomock.Controller) *MockImageStore {
	mock := &MockImageStore{ctrl: ctrl}
	mock.recorder = &MockImageStoreMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockImageStore) EXPECT() *MockImageStoreMockRecorder {
	return m.recorder
}

// Delete mocks base method.
func (m *MockImageStore) Delete(ctx context.Context, key string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Delete", ctx, key)
	ret0, _ := ret[0].(error)
	return ret0
}

// Delete indicates an expected call of Delete.
func (mr *MockImageStoreMockRecorder) Delete(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Delete", reflect.TypeOf((*MockImageStore)(nil).Delete), ctx, key)
}

// Put mocks base method.
func (m *MockImageStore) Put(ctx context.Context, obj storage.Object) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Put", ctx, obj)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Put indicates an expected call of Put.
func (mr *MockImageStoreMockRecorder) Put(ctx, obj any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Put", reflect.TypeOf((*MockImageStore)(nil).Put), ctx, obj)
}

// MockUsers is a mock of Users interface.
type MockUsers struct {
	ctrl     *gomock.Controller
	recorder *MockUsersMockRecorder
	isgomock struct{}
}

// MockUsersMockRecorder is the mock recorder for MockUsers.
type MockUsersMockRecorder struct {
	mock *MockUsers
}

// NewMockUsers creates a new mock instance.
func NewMockUsers(ctrl *gomock.Controller) *MockUsers {
	mock := &MockUsers{ctrl: ctrl}
	mock.recorder = &MockUsersMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockUsers) EXPECT() *MockUsersMockRecorder {
	return m.recorder
}

// GetByID mocks base method.
func (m *MockUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetByID", ctx, id)
	ret0, _ := ret[0].(*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetByID indicates an expected call of GetByID.
func (mr *MockUsersMockRecorder) GetByID(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetByID", reflect.TypeOf((*MockUsers)(nil).GetByID), ctx, id)
}

// MockOffers is a mock of Offers interface.
type MockOffers struct {
	ctrl     *gomock.Controller
	recorder *MockOffersMockRecorder
	isgomock struct{}
}

// MockOffersMockRecorder is the mock recorder for MockOffers.
type MockOffersMockRecorder struct {
	mock *MockOffers
}

// NewMockOffers creates a new mock instance.
func NewMockOffers(ctrl *gomock.Controller) *MockOffers {
	mock := &MockOffers{ctrl: ctrl}
	mock.recorder = &MockOffersMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockOffers) EXPECT() *MockOffersMockRecorder {
	return m.recorder
}

// ListForCard mocks base method.
func (m *MockOffers) ListForCard(ctx context.Context, cardID, ownerID string) ([]*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListForCard", ctx, cardID, ownerID)
	ret0, _ := ret[0].([]*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListForCard indicates an expected call of ListForCard.
func (mr *MockOffersMockRecorder) ListForCard(ctx, cardID, ownerID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListForCard", reflect.TypeOf((*MockOffers)(nil).ListForCard), ctx, cardID, ownerID)
}
