package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		targets []string
		bad     bool
	}{
		{name: "valid", in: `{"target_user_ids":["a","b"],"payload":{"type":"chat"}}`, targets: []string{"a", "b"}},
		{name: "missing targets decode as empty", in: `{"payload":{"x":1}}`},
		{name: "null targets", in: `{"target_user_ids":null,"payload":{}}`},
		{name: "not json", in: `hello`, bad: true},
		{name: "missing payload", in: `{"target_user_ids":["a"]}`, bad: true},
		{name: "null payload", in: `{"target_user_ids":["a"],"payload":null}`, bad: true},
		{name: "array payload", in: `{"target_user_ids":["a"],"payload":[1,2]}`, bad: true},
		{name: "string payload", in: `{"target_user_ids":["a"],"payload":"hi"}`, bad: true},
		{name: "targets not a list", in: `{"target_user_ids":"a","payload":{}}`, bad: true},
		{name: "non-string target", in: `{"target_user_ids":[1],"payload":{}}`, bad: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tc.in))
			if tc.bad {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.targets, ev.TargetUserIDs)
		})
	}
}

func TestNewEventRequiresObjectPayload(t *testing.T) {
	_, err := NewEvent([]string{"a"}, []int{1, 2})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewEvent([]string{"a"}, func() {})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	ev, err := NewEvent([]string{"a"}, map[string]any{"type": "comment_reply", "id": 7})
	require.NoError(t, err)
	data, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target_user_ids":["a"],"payload":{"type":"comment_reply","id":7}}`, string(data))
}

func TestEncodeEventWritesEmptyTargetList(t *testing.T) {
	data, err := EncodeEvent(Event{Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"target_user_ids":[],"payload":{}}`, string(data))
}

func TestUniqueTargets(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueTargets([]string{"a", "", "b", "a"}))
	assert.Nil(t, uniqueTargets(nil))
}
