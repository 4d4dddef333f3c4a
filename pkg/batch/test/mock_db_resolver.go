package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
)

// MockDBConnectionResolver is a testify mock of database.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection returns the configured connection and error. A nil connection may be
// configured together with an error.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(database.DBConnection)
	return conn, args.Error(1)
}

type singleConnectionResolver struct {
	conn database.DBConnection
}

func (r *singleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver returns a resolver that hands out conn for every name.
func NewTestSingleConnectionResolver(conn database.DBConnection) database.DBConnectionResolver {
	return &singleConnectionResolver{conn: conn}
}

var (
	_ database.DBConnectionResolver = (*MockDBConnectionResolver)(nil)
	_ database.DBConnectionResolver = (*singleConnectionResolver)(nil)
)
