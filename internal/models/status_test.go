package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    NotificationStatus
		wantErr bool
	}{
		{"ACTIVE", StatusActive, false},
		{"paused", StatusPaused, false},
		{" Cancelled ", StatusCancelled, false},
		{"", "", true},
		{"DELETED", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNotificationStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
