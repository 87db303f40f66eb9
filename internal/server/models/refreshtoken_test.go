package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshToken_Expired(t *testing.T) {
	expires := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := &RefreshToken{UserID: "u1", Token: "abc", Expires: expires}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", expires.Add(-time.Second), false},
		{"at expiry", expires, true},
		{"after", expires.Add(time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rt.Expired(tt.now))
		})
	}
}
