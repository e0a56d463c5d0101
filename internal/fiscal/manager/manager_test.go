package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient scripts the remote signing API for manager tests.
type fakeClient struct {
	healthState string
	healthErr   error
	initErr     error
	startErr    error
	finishErr   error
	cancelErr   error
	exportData  []byte
	exportErr   error

	healthCalls int
	initCalls   int
	startCalls  int
	finishCalls int
	cancelCalls int
}

func (f *fakeClient) HealthCheck(ctx context.Context) (string, error) {
	f.healthCalls++
	return f.healthState, f.healthErr
}

func (f *fakeClient) InitializeTss(ctx context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeClient) TssState(ctx context.Context) (string, error) {
	return f.healthState, f.healthErr
}

func (f *fakeClient) StartTransaction(ctx context.Context, localID string) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeClient) FinishTransaction(ctx context.Context, localID string, total float64, method string, items []domain.SaleItem) (*domain.SignatureSnapshot, error) {
	f.finishCalls++
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	return &domain.SignatureSnapshot{
		TransactionNumber: 1,
		SignatureValue:    "sig",
		SignatureCounter:  1,
		TssID:             "tss-1",
		ClientID:          localID,
	}, nil
}

func (f *fakeClient) CancelTransaction(ctx context.Context, localID string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeClient) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	return f.exportData, f.exportErr
}

func enabledManager(t *testing.T, client *fakeClient) *Manager {
	t.Helper()

	m := newManager(1, domain.Config{OrgID: 1}, client, zap.NewNop(), nil)
	require.NoError(t, m.Initialize(context.Background()))
	require.True(t, m.IsEnabled())
	return m
}

func TestInitializeFailsWhenHealthCheckFails(t *testing.T) {
	client := &fakeClient{healthErr: errors.New("boom")}
	m := newManager(1, domain.Config{OrgID: 1}, client, zap.NewNop(), nil)

	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsEnabled())
}

func TestInitializeAdvancesFreshlyCreatedTss(t *testing.T) {
	client := &fakeClient{healthState: domain.TssStateCreated}
	m := newManager(1, domain.Config{OrgID: 1}, client, zap.NewNop(), nil)

	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.IsEnabled())
	assert.Equal(t, 1, client.initCalls)
}

func TestInitializeToleratesDeferredTssInitialization(t *testing.T) {
	client := &fakeClient{
		healthState: domain.TssStateCreated,
		initErr:     errors.New("transition rejected"),
	}
	m := newManager(1, domain.Config{OrgID: 1}, client, zap.NewNop(), nil)

	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.IsEnabled())
}

func TestSignTransactionHappyPath(t *testing.T) {
	client := &fakeClient{healthState: domain.TssStateInitialized}
	m := enabledManager(t, client)

	snapshot := m.SignTransaction(context.Background(), "tx-1", 10, domain.PaymentMethodCash, nil)
	require.NotNil(t, snapshot)
	assert.Equal(t, "sig", snapshot.SignatureValue)
	assert.Equal(t, 1, client.startCalls)
	assert.Equal(t, 1, client.finishCalls)
}

func TestSignTransactionDisabledReturnsNilWithoutNetwork(t *testing.T) {
	m := newDisabledManager(1, zap.NewNop(), nil)

	snapshot := m.SignTransaction(context.Background(), "tx-1", 10, domain.PaymentMethodCash, nil)
	assert.Nil(t, snapshot)
}

func TestSignTransactionStartFailureSkipsFinish(t *testing.T) {
	client := &fakeClient{
		healthState: domain.TssStateInitialized,
		startErr:    domain.ErrTransactionStartFailed,
	}
	m := enabledManager(t, client)

	snapshot := m.SignTransaction(context.Background(), "tx-1", 10, domain.PaymentMethodCash, nil)
	assert.Nil(t, snapshot)
	assert.Equal(t, 1, client.startCalls)
	assert.Equal(t, 0, client.finishCalls)
}

func TestSignTransactionFinishFailureReturnsNil(t *testing.T) {
	client := &fakeClient{
		healthState: domain.TssStateInitialized,
		finishErr:   domain.ErrTransactionFinishFailed,
	}
	m := enabledManager(t, client)

	snapshot := m.SignTransaction(context.Background(), "tx-1", 10, domain.PaymentMethodCash, nil)
	assert.Nil(t, snapshot)
	assert.Equal(t, 1, client.finishCalls)
}

func TestCancelTransactionSwallowsFailures(t *testing.T) {
	client := &fakeClient{
		healthState: domain.TssStateInitialized,
		cancelErr:   domain.ErrTransactionCancelFailed,
	}
	m := enabledManager(t, client)

	m.CancelTransaction(context.Background(), "tx-1")
	assert.Equal(t, 1, client.cancelCalls)
}

func TestCancelTransactionDisabledIsNoop(t *testing.T) {
	m := newDisabledManager(1, zap.NewNop(), nil)
	m.CancelTransaction(context.Background(), "tx-1")
}

func TestExportPropagatesFailure(t *testing.T) {
	client := &fakeClient{
		healthState: domain.TssStateInitialized,
		exportErr:   domain.ErrExportFailed,
	}
	m := enabledManager(t, client)

	_, err := m.Export(context.Background(), time.Now(), time.Now())
	require.ErrorIs(t, err, domain.ErrExportFailed)
}

func TestExportDisabled(t *testing.T) {
	m := newDisabledManager(1, zap.NewNop(), nil)

	_, err := m.Export(context.Background(), time.Now(), time.Now())
	require.ErrorIs(t, err, domain.ErrNotEnabled)
}

func TestTssStateDisabled(t *testing.T) {
	m := newDisabledManager(1, zap.NewNop(), nil)

	_, err := m.TssState(context.Background())
	require.ErrorIs(t, err, domain.ErrNotEnabled)
}
