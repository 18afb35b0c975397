package banner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetString(t *testing.T) {
	s := GetString()
	assert.True(t, strings.HasPrefix(s, "\n"))
	assert.Contains(t, s, "matrix load testing")
}
