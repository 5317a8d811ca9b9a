package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, Version, info.Version)
	assert.True(t, strings.HasPrefix(VersionString(), "climalert "+Version), VersionString())
	assert.True(t, strings.HasPrefix(UserAgent(), "climalert/"+Version), UserAgent())
}
