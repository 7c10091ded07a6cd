package grantkit

import (
	"net/http"
)

// Middleware provides HTTP middleware for privilege checking. Handlers are
// expected to authenticate the request upstream and place the authorization
// Session in the request context (or supply a custom extractor).
type Middleware struct {
	service      *Service
	getSession   func(*http.Request) *Session
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := grantkit.NewMiddleware(service,
//	    grantkit.WithSessionExtractor(func(r *http.Request) *grantkit.Session {
//	        return sessionStore.Lookup(r)
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getSession:   defaultGetSession,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithSessionExtractor sets a custom function to extract the Session from a request.
func WithSessionExtractor(fn func(*http.Request) *Session) MiddlewareOption {
	return func(m *Middleware) {
		m.getSession = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetSession(r *http.Request) *Session {
	return GetSession(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if IsPermissionDenied(err) || IsNotAuthorized(err) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if IsRoleNotFound(err) || IsInvalidGrantee(err) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// ObjectExtractor extracts the target object from an HTTP request.
type ObjectExtractor func(*http.Request) (ObjectRef, error)

// ObjectFromParam creates an ObjectExtractor that reads the object ID from
// URL parameters. Compatible with chi, gorilla/mux, and standard library
// patterns.
//
// Example:
//
//	// For route /tables/{tableID}/rows
//	mw.RequirePrivilege(grantkit.PrivilegeSelect, grantkit.ObjectFromParam(grantkit.ClassTable, "tableID"))
func ObjectFromParam(class, paramName string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		objectID := r.PathValue(paramName)
		if objectID == "" {
			if v := r.Context().Value(paramName); v != nil {
				if s, ok := v.(string); ok {
					objectID = s
				}
			}
		}
		if objectID == "" {
			return ObjectRef{}, NewError(ErrUnknownObjectClass, "object ID not found in request").
				WithObject(ObjectRef{Class: class})
		}
		return ObjectRef{Class: class, ID: objectID}, nil
	}
}

// ObjectFromQuery creates an ObjectExtractor that reads the object ID from
// query parameters.
//
// Example:
//
//	// For route /api/rows?table_id=tbl_123
//	mw.RequirePrivilege(grantkit.PrivilegeSelect, grantkit.ObjectFromQuery(grantkit.ClassTable, "table_id"))
func ObjectFromQuery(class, queryParam string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		objectID := r.URL.Query().Get(queryParam)
		if objectID == "" {
			return ObjectRef{}, NewError(ErrUnknownObjectClass, "object ID not found in query").
				WithObject(ObjectRef{Class: class})
		}
		return ObjectRef{Class: class, ID: objectID}, nil
	}
}

// ObjectFromHeader creates an ObjectExtractor that reads the object ID from a header.
func ObjectFromHeader(class, headerName string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		objectID := r.Header.Get(headerName)
		if objectID == "" {
			return ObjectRef{}, NewError(ErrUnknownObjectClass, "object ID not found in header").
				WithObject(ObjectRef{Class: class})
		}
		return ObjectRef{Class: class, ID: objectID}, nil
	}
}

// StaticObject creates an ObjectExtractor that always returns the same object.
//
// Example:
//
//	mw.RequirePrivilege(grantkit.PrivilegeConnect, grantkit.StaticObject(grantkit.ClassDatabase, "main"))
func StaticObject(class, objectID string) ObjectExtractor {
	return func(r *http.Request) (ObjectRef, error) {
		return ObjectRef{Class: class, ID: objectID}, nil
	}
}

// RequirePrivilege creates middleware that requires the session's active role
// to hold a privilege on the extracted object, directly or through inherited
// memberships.
//
// Example:
//
//	router.With(mw.RequirePrivilege(grantkit.PrivilegeUpdate, grantkit.ObjectFromParam(grantkit.ClassTable, "tableID"))).
//	    Post("/tables/{tableID}/rows", insertRowHandler)
func (m *Middleware) RequirePrivilege(privilege string, extractor ObjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := m.getSession(r)
			if sess == nil {
				m.errorHandler(w, r, NewError(ErrNotAuthorized, "no session on request"))
				return
			}

			obj, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			ok, err := m.service.EffectivePrivilege(ctx, sess, obj, privilege)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !ok {
				m.errorHandler(w, r, NewError(ErrPermissionDenied, "missing required privilege").
					WithObject(obj).
					WithPrivilege(privilege).
					WithActor(sess.ActiveRoleName()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPrivilege creates middleware that requires any of the given
// privileges on the extracted object.
//
// Example:
//
//	router.With(mw.RequireAnyPrivilege([]string{grantkit.PrivilegeSelect, grantkit.PrivilegeUpdate}, extractor)).
//	    Get("/tables/{tableID}", readTableHandler)
func (m *Middleware) RequireAnyPrivilege(privileges []string, extractor ObjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := m.getSession(r)
			if sess == nil {
				m.errorHandler(w, r, NewError(ErrNotAuthorized, "no session on request"))
				return
			}

			obj, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			for _, privilege := range privileges {
				ok, err := m.service.EffectivePrivilege(ctx, sess, obj, privilege)
				if err != nil {
					m.errorHandler(w, r, err)
					return
				}
				if ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.errorHandler(w, r, NewError(ErrPermissionDenied, "missing required privilege").
				WithObject(obj).
				WithActor(sess.ActiveRoleName()))
		})
	}
}

// RequireSuperuser creates middleware that only admits sessions whose active
// role is a superuser.
func (m *Middleware) RequireSuperuser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := m.getSession(r)
			if sess == nil {
				m.errorHandler(w, r, NewError(ErrNotAuthorized, "no session on request"))
				return
			}

			role, err := m.service.cat.RoleByID(ctx, sess.ActiveRoleID())
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !role.Superuser {
				m.errorHandler(w, r, NewError(ErrNotAuthorized, "superuser required").
					WithActor(sess.ActiveRoleName()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context, so mutations performed by the
// handler carry request attribution in the audit log.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)
			ctx = WithUserAgent(ctx, r.UserAgent())

			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			if sess := m.getSession(r); sess != nil {
				ctx = WithSession(ctx, sess)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
