package queue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"hermes/pkg/logger"
)

func newTestLogger() *logger.Logger {
	zapLog, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLog.Sugar()}
}

func TestKafkaDriverGroupIDIsPerInstance(t *testing.T) {
	log := newTestLogger()
	d1 := NewKafkaDriver([]string{"localhost:9092"}, "hermes", log)
	d2 := NewKafkaDriver([]string{"localhost:9092"}, "hermes", log)

	assert.True(t, strings.HasPrefix(d1.groupID, "hermes-"))
	assert.True(t, strings.HasPrefix(d2.groupID, "hermes-"))
	assert.NotEqual(t, d1.groupID, d2.groupID,
		"instances must not share a consumer group or they split the topic between them")
}

func TestKafkaTopicNames(t *testing.T) {
	assert.Equal(t, "menu.update", kafkaTopic("menu:update"))
	assert.Equal(t, "menu.close", kafkaTopic("menu:close"))
	assert.Equal(t, "plain", kafkaTopic("plain"))
}
