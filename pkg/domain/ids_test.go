package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hemolink/pkg/domain-errors"
)

func TestParseDonorID(t *testing.T) {
	raw := uuid.NewString()
	id, err := ParseDonorID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, id.String())
	assert.False(t, id.IsNil())
}

func TestParseIDRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"not a uuid": "not-a-uuid",
		"nil uuid":   "00000000-0000-0000-0000-000000000000",
		"short":      "1234",
		"whitespace": "  ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequestID(raw)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIDJSONRoundTrip(t *testing.T) {
	id := NewReservationID()

	b, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(b))

	var back ReservationID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, id, back)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(23.78, 90.41)
	require.NoError(t, err)
	assert.Equal(t, 23.78, p.Lat)

	_, err = ParsePoint(91, 0)
	assert.Error(t, err)
	_, err = ParsePoint(0, -181)
	assert.Error(t, err)
}
