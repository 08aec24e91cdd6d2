package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryServiceValidatesURL(t *testing.T) {
	svc, err := NewQueryService("http://localhost:9090")
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = NewQueryService("://not-a-url")
	assert.Error(t, err)
}
