package publisher

import "example.com/workoutprocessor/pkg/events"

const workoutCreatedSchema = `{
  "type": "object",
  "title": "WorkoutCreated",
  "properties": {
    "workoutId": {"type": "integer"},
    "externalId": {"type": "string"},
    "startedAt": {"type": "string", "format": "date-time"},
    "endedAt": {"type": "string", "format": "date-time"},
    "duration": {"type": "number"},
    "distance": {"type": "number"},
    "workoutTypeId": {"type": "integer"},
    "workoutTypeName": {"type": "string"},
    "workoutName": {"type": "string"},
    "energyBurned": {"type": "number"},
    "userId": {"type": "integer"},
    "periodId": {"type": "integer"},
    "correlationId": {"type": "string"}
  },
  "required": ["workoutId", "externalId", "startedAt", "endedAt", "duration", "workoutTypeId", "energyBurned", "userId", "periodId"],
  "additionalProperties": false
}`

// schemaCatalog maps event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	events.WorkoutCreatedType: workoutCreatedSchema,
}
