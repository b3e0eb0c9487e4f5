package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	common_models "go-kpi/internal/common/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockInserter struct {
	mu   sync.Mutex
	docs []common_models.Log
}

func (m *MockInserter) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, document.(common_models.Log))
	return &mongo.InsertOneResult{}, nil
}

func (m *MockInserter) Docs() []common_models.Log {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common_models.Log(nil), m.docs...)
}

func TestDBCore_TeesEntriesToWriter(t *testing.T) {
	sink := &MockInserter{}
	writer := newDBLogWriter(sink, "go-kpi-test", 10)

	obsCore, observed := observer.New(zapcore.DebugLevel)
	log := zap.New(NewDBCore(obsCore, writer), zap.AddCaller())

	log.With(zap.String("kpi", "sales")).Warn("Skipping unsupported aggregation", zap.String("load_id", "abc"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, writer.Close(ctx))

	assert.Equal(t, 1, observed.Len(), "base core still receives the entry")

	docs := sink.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, "Skipping unsupported aggregation", docs[0].Message)
	assert.Equal(t, 30, docs[0].LogLevelId)
	assert.Equal(t, "sales", docs[0].KPIID)
	assert.Equal(t, "abc", docs[0].LoadID)
	assert.Equal(t, "go-kpi-test", docs[0].AppID)
}

func TestDBLogWriter_DropsWhenFull(t *testing.T) {
	w := &DBLogWriter{logChan: make(chan LogEntry, 1), done: make(chan struct{})}

	w.AddLog(LogEntry{Message: "first"})
	w.AddLog(LogEntry{Message: "second"})

	assert.Len(t, w.logChan, 1)
	assert.Equal(t, "first", (<-w.logChan).Message)
}

func TestMapLevelToInt(t *testing.T) {
	tests := []struct {
		level zapcore.Level
		want  int
	}{
		{zapcore.DebugLevel, 10},
		{zapcore.InfoLevel, 20},
		{zapcore.WarnLevel, 30},
		{zapcore.ErrorLevel, 40},
		{zapcore.FatalLevel, 50},
		{zapcore.PanicLevel, 20},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapLevelToInt(tt.level))
		})
	}
}
