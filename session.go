package grantkit

import (
	"context"
	"sync"
)

// Session is the per-connection authorization context: login role, active
// role and connected database. It is an explicit value threaded through every
// call, never shared process state; one Session belongs to one connection and
// is dropped at session end.
//
// The session caches the inherited-privilege closure of its active role.
// The cache is keyed to the service's graph version, so membership mutations
// made through the same service invalidate it automatically.
type Session struct {
	loginRoleID    string
	loginRoleName  string
	activeRoleID   string
	activeRoleName string
	databaseID     string

	mu             sync.Mutex
	closure        map[string]bool
	closureVersion int64
	closureValid   bool
}

// NewSession opens an authorization session for a login role connected to a
// database (empty databaseID for a cluster-wide session). The role must
// exist and carry the login attribute.
func (s *Service) NewSession(ctx context.Context, loginRoleName, databaseID string) (*Session, error) {
	role, err := s.cat.RoleByName(ctx, loginRoleName)
	if err != nil {
		return nil, err
	}
	if !role.CanLogin {
		return nil, NewError(ErrNotAuthorized, "role is not permitted to log in").
			WithRole(role.Name)
	}
	return &Session{
		loginRoleID:    role.ID,
		loginRoleName:  role.Name,
		activeRoleID:   role.ID,
		activeRoleName: role.Name,
		databaseID:     databaseID,
	}, nil
}

// LoginRoleID returns the role the session logged in as.
func (sess *Session) LoginRoleID() string {
	return sess.loginRoleID
}

// LoginRoleName returns the name of the login role.
func (sess *Session) LoginRoleName() string {
	return sess.loginRoleName
}

// ActiveRoleID returns the currently active role.
func (sess *Session) ActiveRoleID() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.activeRoleID
}

// ActiveRoleName returns the name of the currently active role.
func (sess *Session) ActiveRoleName() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.activeRoleName
}

// DatabaseID returns the connected database, empty for a cluster session.
func (sess *Session) DatabaseID() string {
	return sess.databaseID
}

// Scope returns the scope the session evaluates privileges in.
func (sess *Session) Scope() Scope {
	return Scope{DatabaseID: sess.databaseID}
}

func (sess *Session) setActive(roleID, roleName string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.activeRoleID = roleID
	sess.activeRoleName = roleName
	sess.closureValid = false
	sess.closure = nil
}

// SetRole switches the session's active role. The target must be the login
// role itself or a member of the login role's SET-eligible closure; the check
// is always evaluated against the login role, never the current active role,
// so no intermediate SET ROLE step is ever required. A superuser login may
// switch to any role.
func (s *Service) SetRole(ctx context.Context, sess *Session, targetName string) error {
	if sess == nil {
		return NewError(ErrNotAuthorized, "no session")
	}
	if targetName == sess.loginRoleName {
		s.ResetRole(sess)
		return nil
	}

	target, err := s.cat.RoleByName(ctx, targetName)
	if err != nil {
		return err
	}

	login, err := s.cat.RoleByID(ctx, sess.loginRoleID)
	if err != nil {
		return err
	}
	if !login.Superuser {
		eligible, err := s.SetEligibleClosure(ctx, sess.loginRoleID, sess.Scope())
		if err != nil {
			return err
		}
		if !eligible[target.ID] {
			return NewError(ErrNotAuthorized, "permission denied to set role").
				WithActor(sess.loginRoleName).
				WithRole(target.Name).
				WithScope(sess.Scope())
		}
	}

	sess.setActive(target.ID, target.Name)
	return nil
}

// SetRoleNone restores the login role as the active role (SET ROLE NONE).
func (s *Service) SetRoleNone(sess *Session) {
	s.ResetRole(sess)
}

// ResetRole restores the login role as the active role.
func (s *Service) ResetRole(sess *Session) {
	if sess == nil {
		return
	}
	sess.setActive(sess.loginRoleID, sess.loginRoleName)
}

// activeClosure returns the inherited closure of the session's active role,
// serving the cached copy while the membership graph is unchanged.
func (s *Service) activeClosure(ctx context.Context, sess *Session) (map[string]bool, error) {
	if sess == nil {
		return nil, NewError(ErrNotAuthorized, "no session")
	}
	version := s.graphVersion.Load()

	sess.mu.Lock()
	if sess.closureValid && sess.closureVersion == version {
		closure := sess.closure
		sess.mu.Unlock()
		return closure, nil
	}
	active := sess.activeRoleID
	sess.mu.Unlock()

	closure, err := s.InheritedClosure(ctx, active, sess.Scope())
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.activeRoleID == active {
		sess.closure = closure
		sess.closureVersion = version
		sess.closureValid = true
	}
	sess.mu.Unlock()
	return closure, nil
}
