package cmsclient

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"sitecms/internal/localstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// failingStorage behaves like browser storage with persistence disabled.
type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, localstore.ErrUnavailable
}

func (failingStorage) Set(context.Context, string, string) error {
	return localstore.ErrUnavailable
}

func (failingStorage) Remove(context.Context, string) error {
	return localstore.ErrUnavailable
}
