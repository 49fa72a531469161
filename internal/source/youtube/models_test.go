package youtube

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID_UnmarshalJSON(t *testing.T) {
	var id itemID

	require.NoError(t, json.Unmarshal([]byte(`"plain-id"`), &id))
	assert.Equal(t, "plain-id", id.VideoID)

	// Escape sequences in the string form are decoded, not kept verbatim.
	require.NoError(t, json.Unmarshal([]byte(`"escAped\/id"`), &id))
	assert.Equal(t, "escAped/id", id.VideoID)

	require.NoError(t, json.Unmarshal([]byte(`{"videoId": "v42"}`), &id))
	assert.Equal(t, "v42", id.VideoID)
}
