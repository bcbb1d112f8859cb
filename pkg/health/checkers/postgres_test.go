package checkers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestPostgresChecker_Name(t *testing.T) {
	assert.Equal(t, "postgres", NewPostgresChecker(&fakePinger{}, "").Name())
	assert.Equal(t, "sessions-db", NewPostgresChecker(&fakePinger{}, "sessions-db").Name())
}

func TestPostgresChecker_Check(t *testing.T) {
	t.Run("healthy pool", func(t *testing.T) {
		c := NewPostgresChecker(&fakePinger{}, "")
		assert.NoError(t, c.Check(context.Background()))
	})

	t.Run("ping failure is wrapped", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		c := NewPostgresChecker(&fakePinger{err: cause}, "")
		err := c.Check(context.Background())
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "postgres ping failed")
	})
}
