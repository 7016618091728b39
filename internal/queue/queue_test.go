package taskqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitCSV(" a, b ,c,"))
}

func TestSplitCSVSingleBroker(t *testing.T) {
	assert.Equal(t, []string{"localhost:9092"}, SplitCSV("localhost:9092"))
}
