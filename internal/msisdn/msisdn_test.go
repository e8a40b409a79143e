package msisdn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "LocalFormat", in: "0241234567", want: "233241234567"},
		{name: "InternationalFormat", in: "233241234567", want: "233241234567"},
		{name: "PlusPrefix", in: "+233241234567", want: "233241234567"},
		{name: "BareSubscriber", in: "241234567", want: "233241234567"},
		{name: "Spaces", in: "024 123 4567", want: "233241234567"},
		{name: "Dashes", in: "024-123-4567", want: "233241234567"},
		{name: "TooShort", in: "02412", wantErr: true},
		{name: "TooLong", in: "2332412345678", wantErr: true},
		{name: "Letters", in: "02412345ab", wantErr: true},
		{name: "Empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("0241234567"))
	assert.False(t, Valid("not-a-number"))
}
