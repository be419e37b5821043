package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is the caller AuthRequired put on the gin context.
type Identity interface {
	UserID() uuid.UUID
	HasRole(role string) bool
	// TenantID is the organization the token was issued for, or nil.
	TenantID() *uuid.UUID
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	roles         []string
	tenantID      *uuid.UUID
	authenticated bool
}

func (i *identity) UserID() uuid.UUID        { return i.userID }
func (i *identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }
func (i *identity) TenantID() *uuid.UUID     { return i.tenantID }
func (i *identity) IsAuthenticated() bool    { return i.authenticated }

// GetIdentity reads the caller from c. Requests that did not pass
// AuthRequired get an unauthenticated identity.
func GetIdentity(c *gin.Context) Identity {
	uid, ok := c.Get(ContextUserIDKey)
	if !ok {
		return &identity{}
	}
	userID, ok := uid.(uuid.UUID)
	if !ok {
		return &identity{}
	}

	id := &identity{userID: userID, authenticated: true}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.roles, _ = roles.([]string)
	}
	if raw, ok := c.Get(ContextTenantIDKey); ok {
		if tenantID, ok := raw.(uuid.UUID); ok {
			id.tenantID = &tenantID
		}
	}
	return id
}

// MustGetIdentity is GetIdentity that aborts with 401 and returns nil for anonymous callers.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}
