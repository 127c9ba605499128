package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMD5ToHexdigest(t *testing.T) {
	assert.Equal(t, "8b1a9953c4611296a827abf8c47804d7", MD5ToHexdigest("Hello"))
}
