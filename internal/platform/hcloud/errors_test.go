package hcloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	locked := hcloud.Error{Code: hcloud.ErrorCodeLocked}
	notFound := fmt.Errorf("wrapped: %w", hcloud.Error{Code: hcloud.ErrorCodeNotFound})
	limited := hcloud.Error{Code: hcloud.ErrorCodeRateLimitExceeded}

	assert.True(t, isResourceLocked(locked))
	assert.False(t, isResourceLocked(notFound))
	assert.True(t, isInvalidParameter(notFound))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsRateLimited(limited))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
