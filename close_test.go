package graphmap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCloser is a test double for a store-like resource.
type mockCloser struct {
	closeErr   error
	closeCalls int
}

func (m *mockCloser) Close(context.Context) error {
	m.closeCalls++
	return m.closeErr
}

func TestCloseWithLog_NilCloser(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	closeWithLog(context.Background(), nil, logger, "graph store")

	assert.Empty(t, logBuf.String(), "should not log for nil closer")
}

func TestCloseWithLog_SuccessfulClose(t *testing.T) {
	closer := &mockCloser{}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	closeWithLog(context.Background(), closer, logger, "graph store")

	assert.Equal(t, 1, closer.closeCalls, "should call Close once")
	assert.Empty(t, logBuf.String(), "should not log on successful close")
}

func TestCloseWithLog_CloseError(t *testing.T) {
	closer := &mockCloser{closeErr: errors.New("close failed: database busy")}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	closeWithLog(context.Background(), closer, logger, "graph store")

	assert.Equal(t, 1, closer.closeCalls)

	logOutput := logBuf.String()
	assert.Contains(t, logOutput, "failed to close resource")
	assert.Contains(t, logOutput, "graph store")
	assert.Contains(t, logOutput, "close failed")
	assert.Contains(t, logOutput, "level=WARN")
}

func TestCloseWithLog_NilLogger(t *testing.T) {
	closer := &mockCloser{closeErr: errors.New("test error")}

	require.NotPanics(t, func() {
		closeWithLog(context.Background(), closer, nil, "graph store")
	})
	assert.Equal(t, 1, closer.closeCalls)
}

func TestMapperClose_JoinsErrors(t *testing.T) {
	store := &closingStore{err: errors.New("disk gone")}
	m := &Mapper{
		store:   store,
		closers: []func() error{func() error { return errors.New("redis gone") }},
	}

	err := m.Close(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Contains(t, err.Error(), "redis gone")
}
