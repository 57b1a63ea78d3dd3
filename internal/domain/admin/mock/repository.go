package mock

import (
	context "context"
	reflect "reflect"

	session "github.com/swapcard/marketplace/internal/domain/session"
	models "github.com/swapcard/marketplace/internal/gateways/database/models"
	gomock "go.uber.org/mock/gomock"
)

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

// List mocks base method.
func (m *MockUsers) List(ctx context.Context) ([]*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "List", ctx)
	ret0, _ := ret[0].([]*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// List indicates an expected call of List.
func (mr *MockUsersMockRecorder) List(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "List", reflect.TypeOf((*MockUsers)(nil).List), ctx)
}

// SetVerified mocks base method.
func (m *MockUsers) SetVerified(ctx context.Context, id string, verified bool) (*models.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetVerified", ctx, id, verified)
	ret0, _ := ret[0].(*models.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// SetVerified indicates an expected call of SetVerified.
func (mr *MockUsersMockRecorder) SetVerified(ctx, id, verified any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetVerified", reflect.TypeOf((*MockUsers)(nil).SetVerified), ctx, id, verified)
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

// ListAll mocks base method.
func (m *MockListings) ListAll(ctx context.Context, ascending bool) ([]*models.CardListing, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListAll", ctx, ascending)
	ret0, _ := ret[0].([]*models.CardListing)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListAll indicates an expected call of ListAll.
func (mr *MockListingsMockRecorder) ListAll(ctx, ascending any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListAll", reflect.TypeOf((*MockListings)(nil).ListAll), ctx, ascending)
}

// MockCardRemover is a mock of CardRemover interface.
type MockCardRemover struct {
	ctrl     *gomock.Controller
	recorder *MockCardRemoverMockRecorder
	isgomock struct{}
}

// MockCardRemoverMockRecorder is the mock recorder for MockCardRemover.
type MockCardRemoverMockRecorder struct {
	mock *MockCardRemover
}

// NewMockCardRemover creates a new mock instance.
func NewMockCardRemover(ctrl *gomock.Controller) *MockCardRemover {
	mock := &MockCardRemover{ctrl: ctrl}
	mock.recorder = &MockCardRemoverMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockCardRemover) EXPECT() *MockCardRemoverMockRecorder {
	return m.recorder
}

// Delete mocks base method.
func (m *MockCardRemover) Delete(ctx context.Context, sess *session.Session, id string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Delete", ctx, sess, id)
	ret0, _ := ret[0].(error)
	return ret0
}

// Delete indicates an expected call of Delete.
func (mr *MockCardRemoverMockRecorder) Delete(ctx, sess, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Delete", reflect.TypeOf((*MockCardRemover)(nil).Delete), ctx, sess, id)
}

// MockTransactions is a mock of Transactions interface.
type MockTransactions struct {
	ctrl     *gomock.Controller
	recorder *MockTransactionsMockRecorder
	isgomock struct{}
}

// MockTransactionsMockRecorder is the mock recorder for MockTransactions.
type MockTransactionsMockRecorder struct {
	mock *MockTransactions
}

// NewMockTransactions creates a new mock instance.
func NewMockTransactions(ctrl *gomock.Controller) *MockTransactions {
	mock := &MockTransactions{ctrl: ctrl}
	mock.recorder = &MockTransactionsMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTransactions) EXPECT() *MockTransactionsMockRecorder {
	return m.recorder
}

// ListAllTransactions mocks base method.
func (m *MockTransactions) ListAllTransactions(ctx context.Context) ([]*models.SwapTransaction, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListAllTransactions", ctx)
	ret0, _ := ret[0].([]*models.SwapTransaction)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListAllTransactions indicates an expected call of ListAllTransactions.
func (mr *MockTransactionsMockRecorder) ListAllTransactions(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListAllTransactions", reflect.TypeOf((*MockTransactions)(nil).ListAllTransactions), ctx)
}

// MockStats is a mock of Stats interface.
type MockStats struct {
	ctrl     *gomock.Controller
	recorder *MockStatsMockRecorder
	isgomock struct{}
}

// MockStatsMockRecorder is the mock recorder for MockStats.
type MockStatsMockRecorder struct {
	mock *MockStats
}

// NewMockStats creates a new mock instance.
func NewMockStats(ctrl *gomock.Controller) *MockStats {
	mock := &MockStats{ctrl: ctrl}
	mock.recorder = &MockStatsMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockStats) EXPECT() *MockStatsMockRecorder {
	return m.recorder
}

// Totals mocks base method.
func (m *MockStats) Totals(ctx context.Context) (*models.MarketTotals, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Totals", ctx)
	ret0, _ := ret[0].(*models.MarketTotals)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Totals indicates an expected call of Totals.
func (mr *MockStatsMockRecorder) Totals(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Totals", reflect.TypeOf((*MockStats)(nil).Totals), ctx)
}

// MockVerifier is a mock of Verifier interface.
type MockVerifier struct {
	ctrl     *gomock.Controller
	recorder *MockVerifierMockRecorder
	isgomock struct{}
}

// MockVerifierMockRecorder is the mock recorder for MockVerifier.
type MockVerifierMockRecorder struct {
	mock *MockVerifier
}

// NewMockVerifier creates a new mock instance.
func NewMockVerifier(ctrl *gomock.Controller) *MockVerifier {
	mock := &MockVerifier{ctrl: ctrl}
	mock.recorder = &MockVerifierMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockVerifier) EXPECT() *MockVerifierMockRecorder {
	return m.recorder
}

// SendVerification mocks base method.
func (m *MockVerifier) SendVerification(ctx context.Context, displayName string, email string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SendVerification", ctx, displayName, email)
	ret0, _ := ret[0].(error)
	return ret0
}

// SendVerification indicates an expected call of SendVerification.
func (mr *MockVerifierMockRecorder) SendVerification(ctx, displayName, email any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SendVerification", reflect.TypeOf((*MockVerifier)(nil).SendVerification), ctx, displayName, email)
}
