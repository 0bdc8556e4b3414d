package storage

import (
	"testing"

	"github.com/pathnav/navigator/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestDiscard(t *testing.T) {
	var b Backend = Discard{}

	assert.NoError(t, b.Init())
	assert.NoError(t, b.StartSession(&core.Session{}))
	assert.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{}))
	assert.NoError(t, b.RecordFrame(&core.Frame{}))
	assert.NoError(t, b.RecordTrack(&core.Track{}))
	assert.NoError(t, b.EndSession())
	assert.NoError(t, b.Close())

	_, ok := b.(Exporter)
	assert.False(t, ok)
}
