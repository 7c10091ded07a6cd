package grantkit

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for GrantKit operations.
var (
	// ErrCycle is returned when a membership grant would create a cycle in
	// the scope's graph projection.
	ErrCycle = errors.New("grantkit: membership cycle")

	// ErrInvalidGrantee is returned when PUBLIC is used where it is not
	// allowed (membership target, grant-option recipient) or on a self-grant.
	ErrInvalidGrantee = errors.New("grantkit: invalid grantee")

	// ErrPermissionDenied is returned when the actor holds no relevant
	// privilege or option at all.
	ErrPermissionDenied = errors.New("grantkit: permission denied")

	// ErrDependency is returned when a revoke or drop is blocked by existing
	// dependents under RESTRICT semantics.
	ErrDependency = errors.New("grantkit: dependent objects exist")

	// ErrNotAuthorized is returned on SET ROLE to an ineligible target or a
	// login attempt by a role without the login attribute.
	ErrNotAuthorized = errors.New("grantkit: not authorized")

	// ErrInvalidName is returned for role names using the reserved prefix.
	ErrInvalidName = errors.New("grantkit: invalid role name")

	// ErrRoleNotFound is returned when a named role does not exist.
	ErrRoleNotFound = errors.New("grantkit: role not found")

	// ErrRoleExists is returned when creating a role whose name is taken.
	ErrRoleExists = errors.New("grantkit: role already exists")

	// ErrUnknownObjectClass is returned for object classes the registry does
	// not define.
	ErrUnknownObjectClass = errors.New("grantkit: unknown object class")

	// ErrUnknownPrivilege is returned for privilege kinds not valid on the
	// object class.
	ErrUnknownPrivilege = errors.New("grantkit: unknown privilege")

	// ErrStorage is returned when a catalog operation fails.
	ErrStorage = errors.New("grantkit: storage error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	Role      string // Role involved (if applicable)
	Member    string // Member role involved (if applicable)
	Actor     string // Actor that triggered the error (if applicable)
	Object    string // Object reference involved (if applicable)
	Privilege string // Privilege kind involved (if applicable)
	Scope     string // Scope involved (if applicable)

	// Blockers lists the dependent rows blocking a RESTRICT revoke or drop.
	Blockers []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if len(e.Blockers) > 0 {
		msg = fmt.Sprintf("%s (blocked by %s)", msg, strings.Join(e.Blockers, ", "))
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithRole adds the target role to the error.
func (e *Error) WithRole(role string) *Error {
	e.Role = role
	return e
}

// WithMember adds the member role to the error.
func (e *Error) WithMember(member string) *Error {
	e.Member = member
	return e
}

// WithActor adds the acting role to the error.
func (e *Error) WithActor(actor string) *Error {
	e.Actor = actor
	return e
}

// WithObject adds the object reference to the error.
func (e *Error) WithObject(obj ObjectRef) *Error {
	e.Object = obj.String()
	return e
}

// WithPrivilege adds the privilege kind to the error.
func (e *Error) WithPrivilege(kind string) *Error {
	e.Privilege = kind
	return e
}

// WithScope adds the scope to the error.
func (e *Error) WithScope(scope Scope) *Error {
	e.Scope = scope.String()
	return e
}

// WithBlockers records the dependents blocking the operation.
func (e *Error) WithBlockers(blockers []string) *Error {
	e.Blockers = blockers
	return e
}

// IsCycle checks if an error is a membership-cycle rejection.
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}

// IsInvalidGrantee checks if an error is an invalid-grantee rejection.
func IsInvalidGrantee(err error) bool {
	return errors.Is(err, ErrInvalidGrantee)
}

// IsPermissionDenied checks if an error is a permission denial.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsDependency checks if an error is a RESTRICT dependency rejection.
func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency)
}

// IsNotAuthorized checks if an error is a SET ROLE / login denial.
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsInvalidName checks if an error is a reserved-name rejection.
func IsInvalidName(err error) bool {
	return errors.Is(err, ErrInvalidName)
}

// IsRoleNotFound checks if an error is a missing-role lookup.
func IsRoleNotFound(err error) bool {
	return errors.Is(err, ErrRoleNotFound)
}
