package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/plugins"
)

type createFamilyRequest struct {
	Father   *string  `json:"father"`
	Mother   *string  `json:"mother"`
	Children []string `json:"children"`
	Notes    *string  `json:"notes"`
	Public   bool     `json:"public"`
}

func (h *Handler) createFamily(c *gin.Context) {
	var req createFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := genealogy.FamilyDraft{Notes: req.Notes, Public: req.Public}
	var err error
	if draft.Father, err = parseOptionalPersonID(req.Father); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if draft.Mother, err = parseOptionalPersonID(req.Mother); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if draft.Children, err = parsePersonIDs(req.Children); err != nil {
		respondError(c, h.logger, err)
		return
	}

	family, err := h.coord.CreateFamily(c.Request.Context(), draft)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, family)
}

func (h *Handler) getFamily(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	family, err := h.coord.GetFamily(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, family)
}

func decodeFamilyChanges(body patchBody) (genealogy.FamilyChanges, error) {
	var (
		ch  genealogy.FamilyChanges
		err error
	)
	if ch.Father, err = nullable[genealogy.PersonID](body, "father"); err != nil {
		return ch, err
	}
	if ch.Mother, err = nullable[genealogy.PersonID](body, "mother"); err != nil {
		return ch, err
	}
	if ch.Notes, err = nullable[string](body, "notes"); err != nil {
		return ch, err
	}
	if ch.Public, err = optional[bool](body, "public"); err != nil {
		return ch, err
	}
	raw, err := optional[[]string](body, "children")
	if err != nil {
		return ch, err
	}
	if raw != nil {
		children, err := parsePersonIDs(*raw)
		if err != nil {
			return ch, err
		}
		ch.Children = &children
	}
	return ch, nil
}

func (h *Handler) updateFamily(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := readPatch(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	changes, err := decodeFamilyChanges(body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	family, err := h.coord.UpdateFamily(c.Request.Context(), id, changes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, family)
}

type appendChildRequest struct {
	ChildID string `json:"child_id" binding:"required"`
}

func (h *Handler) appendChild(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req appendChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	child, err := genealogy.ParsePersonID(req.ChildID)
	if err != nil {
		respondError(c, h.logger, badRequest("invalid child_id"))
		return
	}

	family, err := h.coord.AppendChild(c.Request.Context(), id, child)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, family)
}

func (h *Handler) removeChild(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	child, err := personParam(c, "childId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	family, err := h.coord.RemoveChild(c.Request.Context(), id, child)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, family)
}

type familyEventRequest struct {
	EventType string  `json:"event_type" binding:"required"`
	Date      *string `json:"date"`
	Notes     *string `json:"notes"`
}

func (h *Handler) addFamilyEvent(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req familyEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	event := genealogy.FamilyEvent{FamilyID: id, EventType: req.EventType, Date: date, Notes: req.Notes}
	if err := event.Validate(); err != nil {
		respondError(c, h.logger, badRequest(err.Error()))
		return
	}
	created, err := h.coord.AddFamilyEvent(c.Request.Context(), event)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": h.svc.plugins.Available()})
}

// pluginRequest reads the capability path parameter and the optional JSON
// config body
func pluginRequest(c *gin.Context) (plugins.Capability, []byte, error) {
	capability, err := plugins.ParseCapability(c.Param("capability"))
	if err != nil {
		return plugins.Capability{}, nil, badRequest(err.Error())
	}
	config, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return plugins.Capability{}, nil, badRequest("unreadable body")
	}
	if len(config) == 0 {
		config = nil
	}
	return capability, config, nil
}

func (h *Handler) runPersonPlugins(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	capability, config, err := pluginRequest(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses, err := h.svc.RunPersonPlugins(c.Request.Context(), id, capability, config)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capability": capability.String(), "responses": responses})
}

func (h *Handler) runFamilyPlugins(c *gin.Context) {
	id, err := familyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	capability, config, err := pluginRequest(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	responses, err := h.svc.RunFamilyPlugins(c.Request.Context(), id, capability, config)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capability": capability.String(), "responses": responses})
}
