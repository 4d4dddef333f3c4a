package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
	batchtest "github.com/tigerroll/bulkload/pkg/batch/test"
)

func TestRunInTransaction_Commits(t *testing.T) {
	mockTx := new(batchtest.MockTx)
	tm := new(batchtest.MockTxManager)
	tm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	tm.On("Commit", mockTx).Return(nil)

	called := false
	err := tx.RunInTransaction(context.Background(), tm, func(got tx.Tx) error {
		called = true
		assert.Same(t, mockTx, got)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	tm.AssertExpectations(t)
	tm.AssertNotCalled(t, "Rollback", mock.Anything)
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	mockTx := new(batchtest.MockTx)
	tm := new(batchtest.MockTxManager)
	tm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	tm.On("Rollback", mockTx).Return(nil)

	boom := errors.New("write failed")
	err := tx.RunInTransaction(context.Background(), tm, func(tx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	tm.AssertExpectations(t)
	tm.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestRunInTransaction_BeginFails(t *testing.T) {
	tm := new(batchtest.MockTxManager)
	boom := errors.New("no connection")
	tm.On("Begin", mock.Anything, mock.Anything).Return(nil, boom)

	err := tx.RunInTransaction(context.Background(), tm, func(tx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
