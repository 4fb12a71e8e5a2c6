package checksum

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestStatHash_Deterministic(t *testing.T) {
	a := StatHash("a.png", 100, 1000)
	b := StatHash("a.png", 100, 1000)
	assert.Equal(t, a, b)
	assert.Regexp(t, hexRe, a)
}

func TestStatHash_InputsChangeOutput(t *testing.T) {
	base := StatHash("a.png", 100, 1000)
	assert.NotEqual(t, base, StatHash("b.png", 100, 1000), "name")
	assert.NotEqual(t, base, StatHash("a.png", 101, 1000), "size")
	assert.NotEqual(t, base, StatHash("a.png", 100, 2000), "mtime")
}

func TestStatHash_FieldBoundaries(t *testing.T) {
	// "a1" + size 0 must not collide with "a" + size 10.
	assert.NotEqual(t, StatHash("a1", 0, 5), StatHash("a", 10, 5))
}

func TestStatHash_UnknownValues(t *testing.T) {
	h := StatHash("dir", -1, -1)
	assert.Len(t, h, HashLen)
}
