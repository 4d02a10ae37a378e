package httpapi

import (
	"errors"
	"net/http"

	"github.com/collabtext/scribeserver/pkg/authority"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// handleLogin mints a bearer token for the given identity. There is no
// password or credential check (spec.md §6.2: "demo-grade; production
// deployments substitute real auth").
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	token, err := s.signer.Mint(req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: token, UserID: req.UserID})
}

type createDocumentRequest struct {
	Seed string `json:"seed"`
}

type createDocumentResponse struct {
	DocID string `json:"docId"`
}

func (s *Server) handleCreateDocument(c *gin.Context) {
	var req createDocumentRequest
	// Seed is optional; an absent or malformed body just means an empty document.
	_ = c.ShouldBindJSON(&req)

	docID, err := s.authorities.CreateDocument(c.Request.Context(), req.Seed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
		return
	}

	c.JSON(http.StatusCreated, createDocumentResponse{DocID: docID})
}

type snapshotResponse struct {
	Content string `json:"content"`
	Version int    `json:"version"`
}

func (s *Server) handleGetDocument(c *gin.Context) {
	docID := c.Param("id")

	a, err := s.authorities.LoadOrAttach(c.Request.Context(), docID)
	if err != nil {
		writeAuthorityError(c, err)
		return
	}

	content, version := a.Snapshot()
	c.JSON(http.StatusOK, snapshotResponse{Content: content, Version: version})
}

func writeAuthorityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authority.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
