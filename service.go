package grantkit

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultReservedPrefix is the role-name prefix reserved for the system.
const DefaultReservedPrefix = "sys_"

// Service is the authorization engine. It maintains the role directory, the
// membership graph and the privilege grant store through a Catalog, and
// answers every privilege question the surrounding system asks.
//
// Error Handling:
// Commands return the sentinel taxonomy from errors.go wrapped in *Error with
// role/object/scope context. Every mutating command is atomic: an error
// leaves the catalog unchanged. The only partial-effect path is a grant for
// which the grantor holds a subset of the requested grant options; the held
// subset is granted and the rest is surfaced as Warnings.
type Service struct {
	cat     Catalog
	classes *ClassRegistry
	owners  OwnershipRegistry
	monitor *commandMonitor

	reservedPrefix string
	bcryptCost     int

	// graphVersion is bumped on every membership mutation so sessions know
	// when their cached closure is stale.
	graphVersion atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithClassRegistry replaces the default object-class registry.
func WithClassRegistry(r *ClassRegistry) Option {
	return func(s *Service) {
		s.classes = r
	}
}

// WithOwnershipRegistry wires the object-ownership collaborator. Without it
// no object has a known owner and DROP ROLE never sees owned objects.
func WithOwnershipRegistry(o OwnershipRegistry) Option {
	return func(s *Service) {
		s.owners = o
	}
}

// WithReservedPrefix overrides the reserved role-name prefix.
func WithReservedPrefix(prefix string) Option {
	return func(s *Service) {
		s.reservedPrefix = prefix
	}
}

// WithBcryptCost overrides the bcrypt cost used for role credentials.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// New creates a GrantKit service on top of a catalog.
//
// Example:
//
//	cat := grantkit.NewMemoryCatalog()
//	svc := grantkit.New(cat, grantkit.WithOwnershipRegistry(owners))
func New(cat Catalog, opts ...Option) *Service {
	s := &Service{
		cat:            cat,
		classes:        DefaultClasses(),
		owners:         nullOwnership{},
		monitor:        newCommandMonitor(),
		reservedPrefix: DefaultReservedPrefix,
		bcryptCost:     0, // bcrypt.DefaultCost when zero
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classes returns the object-class registry.
func (s *Service) Classes() *ClassRegistry {
	return s.classes
}

// run executes a mutating command inside a catalog transaction and records
// its outcome in the command monitor.
func (s *Service) run(ctx context.Context, command string, fn func(ctx context.Context, tx Catalog) error) error {
	start := time.Now()
	err := s.cat.RunInTx(ctx, fn)
	s.monitor.record(command, time.Since(start), err == nil)
	return err
}

// reservedName reports whether a role name uses the reserved prefix.
func (s *Service) reservedName(name string) bool {
	return strings.HasPrefix(name, s.reservedPrefix)
}

// actorRole resolves the session's active role inside a transaction.
func (s *Service) actorRole(ctx context.Context, cat Catalog, sess *Session) (*Role, error) {
	if sess == nil {
		return nil, NewError(ErrNotAuthorized, "no session")
	}
	return cat.RoleByID(ctx, sess.ActiveRoleID())
}

// GetCommandMetrics returns the current command performance metrics.
func (s *Service) GetCommandMetrics() CommandMetrics {
	return s.monitor.getMetrics()
}

// ResetCommandMetrics resets all command metrics.
func (s *Service) ResetCommandMetrics() {
	s.monitor.reset()
}
