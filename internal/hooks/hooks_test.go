package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ledgerd/internal/logging"
)

func TestRun_OrderAndIsolation(t *testing.T) {
	tl := logging.NewTestLogger()
	p := NewPostCommit(tl.Underlying())

	var order []string
	p.Schedule("a", func(context.Context) error { order = append(order, "a"); return nil })
	p.Schedule("b", func(context.Context) error { order = append(order, "b"); return errors.New("b failed") })
	p.Schedule("c", func(context.Context) error { order = append(order, "c"); panic("c exploded") })
	p.Schedule("d", func(context.Context) error { order = append(order, "d"); return nil })

	outcomes := p.Run(context.Background())

	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	require.Len(t, outcomes, 4)
	assert.True(t, outcomes[0].OK())
	assert.EqualError(t, outcomes[1].Err, "b failed")
	assert.False(t, outcomes[1].Panicked)
	assert.True(t, outcomes[2].Panicked)
	assert.Contains(t, outcomes[2].Err.Error(), "c exploded")
	assert.True(t, outcomes[3].OK())
	assert.Equal(t, "c", outcomes[2].Name)

	assert.Equal(t, 2, tl.FilterMessage("post-commit callback failed").Len())
	assert.Zero(t, p.Pending())
}

func TestRun_ClearsQueue(t *testing.T) {
	p := NewPostCommit(nil)
	calls := 0
	p.Schedule("once", func(context.Context) error { calls++; return errors.New("x") })

	p.Run(context.Background())
	p.Run(context.Background())

	assert.Equal(t, 1, calls)
}

func TestRun_IdleIsSilent(t *testing.T) {
	tl := logging.NewTestLogger()
	p := NewPostCommit(tl.Underlying())

	assert.Nil(t, p.Run(context.Background()))
	assert.Empty(t, tl.All())
}

func TestRun_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	p := NewPostCommit(nil)

	var got any
	p.Schedule("ctx", func(ctx context.Context) error { got = ctx.Value(key{}); return nil })
	p.Run(ctx)

	assert.Equal(t, "v", got)
}
