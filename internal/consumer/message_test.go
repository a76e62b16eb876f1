package consumer

import (
	"encoding/json"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/workoutprocessor/internal/publisher"
)

const workoutBody = `{"username":"jane","workouts":[]}`

func TestDecodeMessageRawJSONWithoutHeaders(t *testing.T) {
	msg, err := decodeMessage(kafka.Message{Topic: "t", Offset: 3, Value: []byte(workoutBody)})
	require.NoError(t, err)
	require.Zero(t, msg.SchemaID)
	require.Empty(t, msg.EventType)
	require.JSONEq(t, workoutBody, string(msg.Payload))

	_, parseErr := uuid.Parse(msg.CorrelationID)
	require.NoError(t, parseErr, "a correlation id is generated when none is supplied")
}

func TestDecodeMessageFramedJSON(t *testing.T) {
	msg, err := decodeMessage(kafka.Message{
		Value:   publisher.EncodeWireFormat(7, []byte(workoutBody)),
		Headers: []kafka.Header{{Key: "correlation_id", Value: []byte("corr-9")}},
	})
	require.NoError(t, err)
	require.Equal(t, 7, msg.SchemaID)
	require.Equal(t, "corr-9", msg.CorrelationID)
	require.JSONEq(t, workoutBody, string(msg.Payload))
}

func TestDecodeMessageStructuredCloudEvent(t *testing.T) {
	evt := cloudevents.NewEvent()
	evt.SetID("evt-123")
	evt.SetSource("tracker")
	evt.SetType("com.example.workout.processor")
	require.NoError(t, evt.SetData(cloudevents.ApplicationJSON, json.RawMessage(workoutBody)))
	value, err := json.Marshal(evt)
	require.NoError(t, err)

	msg, err := decodeMessage(kafka.Message{
		Value:   value,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/cloudevents+json; charset=UTF-8")}},
	})
	require.NoError(t, err)
	require.Equal(t, "evt-123", msg.CorrelationID)
	require.Equal(t, "com.example.workout.processor", msg.EventType)
	require.JSONEq(t, workoutBody, string(msg.Payload))
}

func TestDecodeMessageDetectsCloudEventWithoutContentType(t *testing.T) {
	evt := cloudevents.NewEvent()
	evt.SetID("evt-456")
	evt.SetSource("tracker")
	evt.SetType("workout.processor")
	evt.SetExtension("correlationid", "corr-from-extension")
	require.NoError(t, evt.SetData(cloudevents.ApplicationJSON, json.RawMessage(workoutBody)))
	value, err := json.Marshal(evt)
	require.NoError(t, err)

	msg, err := decodeMessage(kafka.Message{Value: value})
	require.NoError(t, err)
	require.Equal(t, "corr-from-extension", msg.CorrelationID)
	require.JSONEq(t, workoutBody, string(msg.Payload))
}

func TestDecodeMessageBinaryCloudEventHeaders(t *testing.T) {
	msg, err := decodeMessage(kafka.Message{
		Value: []byte(workoutBody),
		Headers: []kafka.Header{
			{Key: "ce_id", Value: []byte("evt-789")},
			{Key: "ce_type", Value: []byte("workout.processor")},
			{Key: "ce_specversion", Value: []byte("1.0")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "evt-789", msg.CorrelationID)
	require.Equal(t, "workout.processor", msg.EventType)
}

func TestDecodeMessageCarriesReplayHeader(t *testing.T) {
	msg, err := decodeMessage(kafka.Message{
		Value:   []byte(workoutBody),
		Headers: []kafka.Header{{Key: "dlq_id", Value: []byte("17")}, {Key: "dlq_attempt", Value: []byte("3")}},
	})
	require.NoError(t, err)
	require.Equal(t, "17", msg.ReplayOf)
	require.Equal(t, 3, msg.ReplayAttempt)

	msg, err = decodeMessage(kafka.Message{
		Value:   []byte(workoutBody),
		Headers: []kafka.Header{{Key: "dlq_attempt", Value: []byte("soon")}},
	})
	require.NoError(t, err)
	require.Zero(t, msg.ReplayAttempt)
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{name: "empty", msg: kafka.Message{}},
		{name: "not json", msg: kafka.Message{Value: []byte("hello")}},
		{name: "framed garbage", msg: kafka.Message{Value: publisher.EncodeWireFormat(1, []byte("hello"))}},
		{name: "cloudevent missing id", msg: kafka.Message{
			Value:   []byte(`{"specversion":"1.0","type":"workout.processor","source":"tracker","data":{}}`),
			Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/cloudevents+json")}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeMessage(tc.msg)
			require.Error(t, err)
		})
	}
}
