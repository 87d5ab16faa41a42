package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, name string, src io.Reader) (int64, error) {
	args := m.Called(ctx, name, src)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Open(name string) (io.ReadCloser, error) {
	args := m.Called(name)
	if rc := args.Get(0); rc != nil {
		return rc.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Remove(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
