package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageClassification(t *testing.T) {
	tests := []struct {
		name          string
		frame         string
		response      bool
		serverRequest bool
		notification  bool
	}{
		{
			name:     "response with result",
			frame:    `{"id":3,"result":{"server_selected_version":2}}`,
			response: true,
		},
		{
			name:     "response with error",
			frame:    `{"id":4,"error":{"message":"no such snapshot"}}`,
			response: true,
		},
		{
			name:          "ping carries method and id",
			frame:         `{"method":"ping","id":42}`,
			serverRequest: true,
		},
		{
			name:         "notification has no id",
			frame:        `{"method":"notify_delete_snapshot","params":{"id":5}}`,
			notification: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.response, msg.IsResponse())
			assert.Equal(t, tt.serverRequest, msg.IsServerRequest())
			assert.Equal(t, tt.notification, msg.IsNotification())
		})
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"id":1,`))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`not json at all`))
	assert.Error(t, err)
}

func TestDecodeMessageKeepsRaw(t *testing.T) {
	frame := `{"id":2,"displays":[{"id":1,"name":"Main"}]}`
	msg, err := DecodeMessage([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, frame, string(msg.Raw))
}

func TestResultFieldNestedShape(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":1,"result":{"server_selected_version":2}}`))
	require.NoError(t, err)

	var version int
	found, err := ResultField(msg, "server_selected_version", &version)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, version)
}

func TestResultFieldFlattenedShape(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":1,"server_selected_version":2}`))
	require.NoError(t, err)

	var version int
	found, err := ResultField(msg, "server_selected_version", &version)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, version)
}

func TestResultFieldAbsent(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":1,"result":{}}`))
	require.NoError(t, err)

	var version int
	found, err := ResultField(msg, "server_selected_version", &version)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultFieldNonObjectResult(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":1,"result":"pong"}`))
	require.NoError(t, err)

	var version int
	found, err := ResultField(msg, "server_selected_version", &version)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultFieldList(t *testing.T) {
	type display struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	// Flattened list shape beside the id
	msg, err := DecodeMessage([]byte(`{"id":2,"displays":[{"id":1,"name":"Main"}]}`))
	require.NoError(t, err)

	var displays []display
	found, err := ResultField(msg, "displays", &displays)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, displays, 1)
	assert.Equal(t, display{ID: 1, Name: "Main"}, displays[0])
}
