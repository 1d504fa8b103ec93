package prover

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hyper   = address.BytesToAddress([]byte{0x01})
	storage = address.BytesToAddress([]byte{0x02})
	other   = address.BytesToAddress([]byte{0x03})
)

func TestSnapshotClassification(t *testing.T) {
	entries := map[address.Address]ProofType{hyper: Hyperlane, storage: Storage}
	s := NewSnapshot(entries)

	assert.True(t, s.IsHyperlaneProver(hyper))
	assert.False(t, s.IsStorageProver(hyper))
	assert.True(t, s.IsStorageProver(storage))
	assert.False(t, s.IsSupported(other))
	assert.Equal(t, 2, s.Len())

	// later changes to the input do not leak into the snapshot
	entries[other] = Hyperlane
	assert.False(t, s.IsHyperlaneProver(other))

	var empty *Snapshot
	assert.False(t, empty.IsSupported(hyper))
	assert.Equal(t, 0, empty.Len())
}

type flakySource struct {
	calls int32
}

func (f *flakySource) Load(context.Context) (map[address.Address]ProofType, error) {
	if atomic.AddInt32(&f.calls, 1) == 2 {
		return nil, errors.New("rpc down")
	}
	return map[address.Address]ProofType{hyper: Hyperlane}, nil
}

func TestRefresherKeepsLastGoodSnapshot(t *testing.T) {
	holder := NewHolder(nil)
	src := &flakySource{}
	r := NewRefresher(holder, src, time.Hour, &logger.EmptyLogger{})

	r.Refresh(context.Background())
	first := holder.Current()
	require.True(t, first.IsHyperlaneProver(hyper))

	r.Refresh(context.Background())
	assert.Same(t, first, holder.Current())

	r.Refresh(context.Background())
	assert.NotSame(t, first, holder.Current())
	assert.True(t, holder.Current().IsHyperlaneProver(hyper))
}

func TestRefresherStartStop(t *testing.T) {
	holder := NewHolder(nil)
	r := NewRefresher(holder, StaticSource{storage: Storage}, 10*time.Millisecond, &logger.EmptyLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	r.Start(ctx)
	assert.True(t, r.IsRunning())

	require.Eventually(t, func() bool { return holder.Current().IsStorageProver(storage) }, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}
