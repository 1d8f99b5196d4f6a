package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
	"github.com/gin-gonic/gin"
)

const (
	opGetPortfolio    = "server.get_portfolio"
	opUpdatePortfolio = "server.update_portfolio"
	opChat            = "server.chat"
)

func (h *httpHandler) handleGetPortfolio(c *gin.Context) {
	profile, err := h.portfolio.Snapshot(c.Request.Context())
	if err != nil {
		h.respondError(c, opGetPortfolio, err)
		return
	}
	if profile.Projects == nil {
		profile.Projects = []portfolio.Project{}
	}
	if profile.Interests == nil {
		profile.Interests = []portfolio.Interest{}
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUpdateBio(c *gin.Context) {
	var request portfolio.Bio
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	bio, err := h.portfolio.UpdateBio(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, opUpdatePortfolio, err)
		return
	}
	c.JSON(http.StatusOK, bio)
}

func (h *httpHandler) handleSyncProjects(c *gin.Context) {
	var request []portfolio.Project
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	projects, err := h.portfolio.SyncProjects(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, opUpdatePortfolio, err)
		return
	}
	if projects == nil {
		projects = []portfolio.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *httpHandler) handleDeleteProject(c *gin.Context) {
	if err := h.portfolio.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, opUpdatePortfolio, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSyncInterests(c *gin.Context) {
	var request []portfolio.Interest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	interests, err := h.portfolio.SyncInterests(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, opUpdatePortfolio, err)
		return
	}
	if interests == nil {
		interests = []portfolio.Interest{}
	}
	c.JSON(http.StatusOK, gin.H{"interests": interests})
}

func (h *httpHandler) handleDeleteInterest(c *gin.Context) {
	if err := h.portfolio.DeleteInterest(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, opUpdatePortfolio, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type chatRequestPayload struct {
	History []chat.Message `json:"history"`
	Message string         `json:"message"`
}

func (h *httpHandler) handleChat(c *gin.Context) {
	if h.chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat_unavailable"})
		return
	}
	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reply, err := h.chat.Reply(c.Request.Context(), request.History, request.Message)
	if err != nil {
		h.respondError(c, opChat, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
