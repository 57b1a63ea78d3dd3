package mock

import (
	context "context"
	reflect "reflect"
	time "time"

	notifications "github.com/swapcard/marketplace/internal/domain/notifications"
	models "github.com/swapcard/marketplace/internal/gateways/database/models"
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

// Accept mocks base method.
func (m *MockRepository) Accept(ctx context.Context, d models.SwapDecision) (*models.SwapTransaction, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Accept", ctx, d)
	ret0, _ := ret[0].(*models.SwapTransaction)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Accept indicates an expected call of Accept.
func (mr *MockRepositoryMockRecorder) Accept(ctx, d any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Accept", reflect.TypeOf((*MockRepository)(nil).Accept), ctx, d)
}

// CreateRequest mocks base method.
func (m *MockRepository) CreateRequest(ctx context.Context, req *models.SwapRequest) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CreateRequest", ctx, req)
	ret0, _ := ret[0].(error)
	return ret0
}

// CreateRequest indicates an expected call of CreateRequest.
func (mr *MockRepositoryMockRecorder) CreateRequest(ctx, req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CreateRequest", reflect.TypeOf((*MockRepository)(nil).CreateRequest), ctx, req)
}

// Deny mocks base method.
func (m *MockRepository) Deny(ctx context.Context, id string, at time.Time) (*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Deny", ctx, id, at)
	ret0, _ := ret[0].(*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Deny indicates an expected call of Deny.
func (mr *MockRepositoryMockRecorder) Deny(ctx, id, at any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Deny", reflect.TypeOf((*MockRepository)(nil).Deny), ctx, id, at)
}

// FindPending mocks base method.
func (m *MockRepository) FindPending(ctx context.Context, requesterCardID string, receiverCardID string) (*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FindPending", ctx, requesterCardID, receiverCardID)
	ret0, _ := ret[0].(*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// FindPending indicates an expected call of FindPending.
func (mr *MockRepositoryMockRecorder) FindPending(ctx, requesterCardID, receiverCardID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FindPending", reflect.TypeOf((*MockRepository)(nil).FindPending), ctx, requesterCardID, receiverCardID)
}

// GetRequest mocks base method.
func (m *MockRepository) GetRequest(ctx context.Context, id string) (*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetRequest", ctx, id)
	ret0, _ := ret[0].(*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetRequest indicates an expected call of GetRequest.
func (mr *MockRepositoryMockRecorder) GetRequest(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetRequest", reflect.TypeOf((*MockRepository)(nil).GetRequest), ctx, id)
}

// ListForCard mocks base method.
func (m *MockRepository) ListForCard(ctx context.Context, cardID, ownerID string) ([]*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListForCard", ctx, cardID, ownerID)
	ret0, _ := ret[0].([]*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListForCard indicates an expected call of ListForCard.
func (mr *MockRepositoryMockRecorder) ListForCard(ctx, cardID, ownerID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListForCard", reflect.TypeOf((*MockRepository)(nil).ListForCard), ctx, cardID, ownerID)
}

// ListIncoming mocks base method.
func (m *MockRepository) ListIncoming(ctx context.Context, receiverID string) ([]*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListIncoming", ctx, receiverID)
	ret0, _ := ret[0].([]*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListIncoming indicates an expected call of ListIncoming.
func (mr *MockRepositoryMockRecorder) ListIncoming(ctx, receiverID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListIncoming", reflect.TypeOf((*MockRepository)(nil).ListIncoming), ctx, receiverID)
}

// ListOutgoing mocks base method.
func (m *MockRepository) ListOutgoing(ctx context.Context, requesterID string) ([]*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListOutgoing", ctx, requesterID)
	ret0, _ := ret[0].([]*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListOutgoing indicates an expected call of ListOutgoing.
func (mr *MockRepositoryMockRecorder) ListOutgoing(ctx, requesterID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListOutgoing", reflect.TypeOf((*MockRepository)(nil).ListOutgoing), ctx, requesterID)
}

// ListStalePending mocks base method.
func (m *MockRepository) ListStalePending(ctx context.Context) ([]*models.SwapRequest, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListStalePending", ctx)
	ret0, _ := ret[0].([]*models.SwapRequest)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListStalePending indicates an expected call of ListStalePending.
func (mr *MockRepositoryMockRecorder) ListStalePending(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListStalePending", reflect.TypeOf((*MockRepository)(nil).ListStalePending), ctx)
}

// ListTransactionsFor mocks base method.
func (m *MockRepository) ListTransactionsFor(ctx context.Context, userID string) ([]*models.SwapTransaction, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListTransactionsFor", ctx, userID)
	ret0, _ := ret[0].([]*models.SwapTransaction)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListTransactionsFor indicates an expected call of ListTransactionsFor.
func (mr *MockRepositoryMockRecorder) ListTransactionsFor(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListTransactionsFor", reflect.TypeOf((*MockRepository)(nil).ListTransactionsFor), ctx, userID)
}

// MockListings is a mock of Listings interface.
type MockListings struct {
	ctrl     *gomock.Controller
	recorder *MockListingsMockRecorder
	isgomock struct{}
}

// MockListingsMockRecorder is the mock recorder for MockListings.
type MockListingsMockRecorder struct {
	mock *MockListings
}

// NewMockListings creates a new mock instance.
func NewMockListings(ctrl *gomock.Controller) *MockListings {
	mock := &MockListings{ctrl: ctrl}
	mock.recorder = &MockListingsMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockListings) EXPECT() *MockListingsMockRecorder {
	return m.recorder
}

// CountOwnedBy mocks base method.
func (m *MockListings) CountOwnedBy(ctx context.Context, uid string) (int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CountOwnedBy", ctx, uid)
	ret0, _ := ret[0].(int)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// CountOwnedBy indicates an expected call of CountOwnedBy.
func (mr *MockListingsMockRecorder) CountOwnedBy(ctx, uid any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CountOwnedBy", reflect.TypeOf((*MockListings)(nil).CountOwnedBy), ctx, uid)
}

// GetByID mocks base method.
func (m *MockListings) GetByID(ctx context.Context, id string) (*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetByID", ctx, id)
	ret0, _ := ret[0].(*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetByID indicates an expected call of GetByID.
func (mr *MockListingsMockRecorder) GetByID(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetByID", reflect.TypeOf((*MockListings)(nil).GetByID), ctx, id)
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

// MockNotifier is a mock of Notifier interface.
type MockNotifier struct {
	ctrl     *gomock.Controller
	recorder *MockNotifierMockRecorder
	isgomock struct{}
}

// MockNotifierMockRecorder is the mock recorder for MockNotifier.
type MockNotifierMockRecorder struct {
	mock *MockNotifier
}

// NewMockNotifier creates a new mock instance.
func NewMockNotifier(ctrl *gomock.Controller) *MockNotifier {
	mock := &MockNotifier{ctrl: ctrl}
	mock.recorder = &MockNotifierMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockNotifier) EXPECT() *MockNotifierMockRecorder {
	return m.recorder
}

// Notify mocks base method.
func (m *MockNotifier) Notify(ctx context.Context, ev notifications.Event) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Notify", ctx, ev)
}

// Notify indicates an expected call of Notify.
func (mr *MockNotifierMockRecorder) Notify(ctx, ev any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Notify", reflect.TypeOf((*MockNotifier)(nil).Notify), ctx, ev)
}

// MockKeyStore is a mock of KeyStore interface.
type MockKeyStore struct {
	ctrl     *gomock.Controller
	recorder *MockKeyStoreMockRecorder
	isgomock struct{}
}

// MockKeyStoreMockRecorder is the mock recorder for MockKeyStore.
type MockKeyStoreMockRecorder struct {
	mock *MockKeyStore
}

// NewMockKeyStore creates a new mock instance.
func NewMockKeyStore(ctrl *gomock.Controller) *MockKeyStore {
	mock := &MockKeyStore{ctrl: ctrl}
	mock.recorder = &MockKeyStoreMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockKeyStore) EXPECT() *MockKeyStoreMockRecorder {
	return m.recorder
}

// Claim mocks base method.
func (m *MockKeyStore) Claim(scope string, key string, payload string) (string, bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Claim", scope, key, payload)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(bool)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

// Claim indicates an expected call of Claim.
func (mr *MockKeyStoreMockRecorder) Claim(scope, key, payload any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Claim", reflect.TypeOf((*MockKeyStore)(nil).Claim), scope, key, payload)
}

// Complete mocks base method.
func (m *MockKeyStore) Complete(scope string, key string, value string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Complete", scope, key, value)
	ret0, _ := ret[0].(error)
	return ret0
}

// Complete indicates an expected call of Complete.
func (mr *MockKeyStoreMockRecorder) Complete(scope, key, value any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Complete", reflect.TypeOf((*MockKeyStore)(nil).Complete), scope, key, value)
}

// Release mocks base method.
func (m *MockKeyStore) Release(scope string, key string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Release", scope, key)
	ret0, _ := ret[0].(error)
	return ret0
}

// Release indicates an expected call of Release.
func (mr *MockKeyStoreMockRecorder) Release(scope, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Release", reflect.TypeOf((*MockKeyStore)(nil).Release), scope, key)
}
