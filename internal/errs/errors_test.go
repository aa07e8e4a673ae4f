package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	assert.Equal(t, "[connection_failed] ping failed: dial tcp: refused",
		Wrap(ErrKindConnectionFailed, "ping failed", cause).Error())
	assert.Equal(t, "[mapping_not_found] no mapping for produtos.embalagem",
		Newf(ErrKindMappingNotFound, "no mapping for %s.%s", "produtos", "embalagem").Error())
}

func TestPredicates_TraverseWrapping(t *testing.T) {
	base := New(ErrKindConfigurationMissing, "no default connection")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.True(t, IsConfigurationMissing(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrKindConfigurationMissing, KindOf(wrapped))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestPredicates_EachKind(t *testing.T) {
	tests := []struct {
		kind ErrKind
		is   func(error) bool
	}{
		{ErrKindNotFound, IsNotFound},
		{ErrKindTimeout, IsTimeout},
		{ErrKindConnectionFailed, IsConnectionFailed},
		{ErrKindQueryFailed, IsQueryFailed},
		{ErrKindInvalidInput, IsInvalidInput},
		{ErrKindPermissionDenied, IsPermissionDenied},
		{ErrKindConfigurationMissing, IsConfigurationMissing},
		{ErrKindMappingNotFound, IsMappingNotFound},
		{ErrKindDriverNotInstalled, IsDriverNotInstalled},
		{ErrKindObjectNotFound, IsObjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.True(t, tt.is(New(tt.kind, "x")))
			assert.False(t, tt.is(New(ErrKindUnknown, "x")))
		})
	}
}

func TestUnwrap_PreservesCause(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := Wrap(ErrKindQueryFailed, "query failed", sentinel)
	assert.ErrorIs(t, err, sentinel)
}
