package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePgSize(t *testing.T) {
	assert.Equal(t, int64(128<<20), parsePgSize("128MB"))
	assert.Equal(t, int64(8<<10), parsePgSize("8kB"))
	assert.Equal(t, int64(2<<30), parsePgSize(" 2GB "))
	assert.Equal(t, int64(-1), parsePgSize("16384"))
	assert.Equal(t, int64(-1), parsePgSize("xMB"))
}
