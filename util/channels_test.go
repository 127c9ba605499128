package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectFromChannel(t *testing.T) {
	c := make(chan string, 10)
	c <- "first"
	c <- "second"
	c <- "third"
	close(c)
	assert.Equal(t, []string{"first", "second", "third"}, CollectFromChannel(c))

	empty := make(chan *struct{}, 1)
	close(empty)
	assert.Empty(t, CollectFromChannel(empty))
}
