package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// createToken answers with the raw token string.
func (s *Server) createToken(c *gin.Context) {
	token, err := s.deps.Tokens.Create(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, token)
}

// activateToken answers true when this call consumed the token.
func (s *Server) activateToken(c *gin.Context) {
	ok, err := s.deps.Tokens.Activate(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ok)
}

// validateToken answers true for an existing unused token.
func (s *Server) validateToken(c *gin.Context) {
	ok, err := s.deps.Tokens.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ok)
}
