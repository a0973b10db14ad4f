// Package influx ships interaction and reconcile metrics to InfluxDB. When
// the server is unreachable, points are appended to a gzip backup file in
// line protocol so nothing is lost.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/amou/memorymap/internal/queue"
)

// Metric buckets.
const (
	BucketInteractions = "map_interactions"
	BucketReconcile    = "reconcile_performance"
	BucketSessions     = "session_stats"
)

// DefaultBucketNames are the buckets writers are created for.
var DefaultBucketNames = []string{
	BucketInteractions,
	BucketReconcile,
	BucketSessions,
}

// pendingPoint is a point captured before any writer was available.
type pendingPoint struct {
	Bucket string
	Point  *influxdb2_write.Point
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	// Pending holds points recorded before Connect succeeded or the backup
	// writer existed; they are drained on the next successful Connect.
	Pending *queue.Queue[pendingPoint]
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
		Pending:     queue.New[pendingPoint](),
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		m.CreateWriters()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	m.drainPending()
	return nil
}

// drainPending flushes points queued before a writer was available.
func (m *Manager) drainPending() {
	if m.Pending.Empty() {
		return
	}
	held := m.Pending.GetAndEmpty()
	m.Logger.Info().Int("count", len(held)).Msg("Flushing queued metric points")
	for _, p := range held {
		if err := m.WritePoint(context.Background(), p.Bucket, p.Point); err != nil {
			m.Logger.Error().Err(err).Str("bucket", p.Bucket).
				Msg("Error flushing queued metric point")
		}
	}
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
	} else {
		if m.BackupWriter == nil {
			m.Pending.Push(pendingPoint{Bucket: bucket, Point: point})
			return nil
		}

		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
		_, err := m.BackupWriter.Write([]byte(lineProtocol + "\n"))
		if err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
		}
	}

	return nil
}

// RecordInteraction writes one interaction event (marker click, hover,
// search, locate) tagged by type and session.
func (m *Manager) RecordInteraction(ctx context.Context, sessionID, kind string) error {
	point := influxdb2_write.NewPointWithMeasurement("interaction").
		AddTag("session", sessionID).
		AddTag("kind", kind).
		AddField("count", 1).
		SetTime(time.Now())
	return m.WritePoint(ctx, BucketInteractions, point)
}

// RecordReconcile writes one marker rebuild observation.
func (m *Manager) RecordReconcile(ctx context.Context, sessionID string, markers int, duration time.Duration) error {
	point := influxdb2_write.NewPointWithMeasurement("reconcile").
		AddTag("session", sessionID).
		AddField("markers", markers).
		AddField("duration_ms", float64(duration.Microseconds())/1000.0).
		SetTime(time.Now())
	return m.WritePoint(ctx, BucketReconcile, point)
}

// RecordSessionCount writes the current number of live map sessions.
func (m *Manager) RecordSessionCount(ctx context.Context, count int) error {
	point := influxdb2_write.NewPointWithMeasurement("sessions").
		AddField("active", count).
		SetTime(time.Now())
	return m.WritePoint(ctx, BucketSessions, point)
}

// Close flushes writers and the backup file.
func (m *Manager) Close() {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		_ = m.BackupWriter.Close()
	}
}
