package grantkit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	err := NewError(ErrPermissionDenied, "no privileges on object").
		WithActor("alice").
		WithObject(ObjectRef{Class: ClassTable, ID: "orders"}).
		WithPrivilege(PrivilegeSelect).
		WithScope(InDatabase("appdb"))

	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.False(t, errors.Is(err, ErrNotAuthorized))
	assert.Equal(t, ErrPermissionDenied, errors.Unwrap(err))

	assert.Equal(t, "alice", err.Actor)
	assert.Equal(t, "table:orders", err.Object)
	assert.Equal(t, PrivilegeSelect, err.Privilege)
	assert.Equal(t, InDatabase("appdb").String(), err.Scope)

	// Wrapping through fmt still matches the sentinel and the type.
	wrapped := fmt.Errorf("handling request: %w", err)
	assert.True(t, IsPermissionDenied(wrapped))
	var gkErr *Error
	require.ErrorAs(t, wrapped, &gkErr)
	assert.Equal(t, "alice", gkErr.Actor)
}

func TestErrorMessage(t *testing.T) {
	err := NewError(ErrDependency, "dependent grants exist")
	assert.Equal(t, "grantkit: dependent objects exist: dependent grants exist", err.Error())

	err = err.WithBlockers([]string{"SELECT on table:t for bob", "SELECT on table:t for carol"})
	assert.Contains(t, err.Error(), "blocked by")
	assert.Contains(t, err.Error(), "bob")
	assert.Contains(t, err.Error(), "carol")

	bare := NewError(ErrCycle, "")
	assert.Equal(t, ErrCycle.Error(), bare.Error())
}

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		sentinel  error
		predicate func(error) bool
	}{
		{ErrCycle, IsCycle},
		{ErrInvalidGrantee, IsInvalidGrantee},
		{ErrPermissionDenied, IsPermissionDenied},
		{ErrDependency, IsDependency},
		{ErrNotAuthorized, IsNotAuthorized},
		{ErrInvalidName, IsInvalidName},
		{ErrRoleNotFound, IsRoleNotFound},
	}
	for _, tc := range cases {
		assert.True(t, tc.predicate(NewError(tc.sentinel, "x")), tc.sentinel.Error())
		assert.False(t, tc.predicate(errors.New("unrelated")), tc.sentinel.Error())
		assert.False(t, tc.predicate(nil), tc.sentinel.Error())
	}
}
