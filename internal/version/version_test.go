package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "layout-tracer 0.1.0 (commit unknown, built unknown)", String())
}
