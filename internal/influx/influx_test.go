package influx

import (
	"context"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePoint_QueuesWithoutWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")

	point := influxdb2_write.NewPointWithMeasurement("interaction").
		AddField("count", 1).
		SetTime(time.Now())
	require.NoError(t, m.WritePoint(context.Background(), BucketInteractions, point))
	assert.Equal(t, 1, m.Pending.Len())
}

func TestRecordHelpers_QueueWithoutWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	ctx := context.Background()

	require.NoError(t, m.RecordInteraction(ctx, "s1", "marker_click"))
	require.NoError(t, m.RecordReconcile(ctx, "s1", 5, 12*time.Millisecond))
	require.NoError(t, m.RecordSessionCount(ctx, 2))
	assert.Equal(t, 3, m.Pending.Len())
}
