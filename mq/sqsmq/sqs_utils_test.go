package sqsmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicationId(t *testing.T) {
	a := deduplicationId(`{"jobId":"a"}`)
	assert.Len(t, a, 64)
	assert.Equal(t, a, deduplicationId(`{"jobId":"a"}`))
	assert.NotEqual(t, a, deduplicationId(`{"jobId":"b"}`))
}
