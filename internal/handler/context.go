package handler

import "github.com/gin-gonic/gin"

// contextUserID returns the authenticated user id set by the auth middleware.
func contextUserID(c *gin.Context) string {
	v, _ := c.Get("userID")
	s, _ := v.(string)
	return s
}

// contextOrgID returns the acting user's organization id from the token claims.
func contextOrgID(c *gin.Context) string {
	v, _ := c.Get("orgID")
	s, _ := v.(string)
	return s
}
