package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleToggle(t *testing.T) {
	assert.Equal(t, RoleRearCamera, RoleFrontCamera.Toggle())
	assert.Equal(t, RoleFrontCamera, RoleRearCamera.Toggle())
	assert.Equal(t, RoleScreen, RoleScreen.Toggle())
}

func TestRoleIsCamera(t *testing.T) {
	assert.True(t, RoleFrontCamera.IsCamera())
	assert.True(t, RoleRearCamera.IsCamera())
	assert.False(t, RoleScreen.IsCamera())
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"user":        RoleFrontCamera,
		"front":       RoleFrontCamera,
		"environment": RoleRearCamera,
		"back":        RoleRearCamera,
		"screen":      RoleScreen,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRole("microphone")
	assert.Error(t, err)
}
