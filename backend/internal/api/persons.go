package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/gedcom"
	"noahs-ark/backend/internal/genealogy"
)

type createPersonRequest struct {
	FirstName     string   `json:"first_name" binding:"required"`
	Surname       string   `json:"surname" binding:"required"`
	SurnamePrefix *string  `json:"surname_prefix"`
	Nicknames     []string `json:"nicknames"`
	Sex           string   `json:"sex"`
	Notes         *string  `json:"notes"`
	Public        bool     `json:"public"`
	UpdatedBy     *string  `json:"updated_by"`
}

func (h *Handler) createPerson(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wizard, err := parseWizard(req.UpdatedBy)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	person, err := h.coord.CreatePerson(c.Request.Context(), genealogy.Person{
		FirstName:     req.FirstName,
		Surname:       req.Surname,
		SurnamePrefix: req.SurnamePrefix,
		Nicknames:     req.Nicknames,
		Sex:           genealogy.ParseSex(req.Sex),
		Notes:         req.Notes,
		Public:        req.Public,
		UpdatedBy:     wizard,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, person)
}

func (h *Handler) getPerson(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	person, err := h.svc.Person(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func decodePersonUpdate(body patchBody) (genealogy.PersonUpdate, error) {
	var (
		u   genealogy.PersonUpdate
		err error
	)
	if u.FirstName, err = optional[string](body, "first_name"); err != nil {
		return u, err
	}
	if u.Surname, err = optional[string](body, "surname"); err != nil {
		return u, err
	}
	if u.SurnamePrefix, err = nullable[string](body, "surname_prefix"); err != nil {
		return u, err
	}
	if u.Notes, err = nullable[string](body, "notes"); err != nil {
		return u, err
	}
	if u.Public, err = optional[bool](body, "public"); err != nil {
		return u, err
	}
	sex, err := optional[string](body, "sex")
	if err != nil {
		return u, err
	}
	if sex != nil {
		parsed := genealogy.ParseSex(*sex)
		u.Sex = &parsed
	}
	wizard, err := optional[string](body, "updated_by")
	if err != nil {
		return u, err
	}
	if u.UpdatedBy, err = parseWizard(wizard); err != nil {
		return u, err
	}
	return u, nil
}

func (h *Handler) updatePerson(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	body, err := readPatch(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	update, err := decodePersonUpdate(body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	person, err := h.coord.UpdatePerson(c.Request.Context(), id, update)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (h *Handler) searchPersons(c *gin.Context) {
	surname := c.Query("surname")
	firstName := c.Query("first_name")
	if surname == "" && firstName == "" {
		respondError(c, h.logger, badRequest("surname or first_name is required"))
		return
	}
	limit, err := intQuery(c, "limit", constants.SearchLimit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	persons, err := h.svc.Search(c.Request.Context(), surname, firstName, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons, "count": len(persons)})
}

func (h *Handler) ancestors(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	generations, err := intQuery(c, "generations", constants.DefaultAncestorGenerations)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if generations < 1 {
		respondError(c, h.logger, badRequest("generations must be at least 1"))
		return
	}

	ancestors, err := h.svc.Ancestors(c.Request.Context(), id, generations)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"person_id": id, "generations": generations, "ancestors": ancestors})
}

func (h *Handler) sosa(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	view, err := h.svc.Sosa(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) consanguinity(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	view, err := h.svc.Consanguinity(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) relationship(c *gin.Context) {
	a, err := personQuery(c, "person1")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	b, err := personQuery(c, "person2")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	view, err := h.svc.Relationship(c.Request.Context(), a, b)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) exportPerson(c *gin.Context) {
	id, err := personParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	person, err := h.svc.Person(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	switch format := c.DefaultQuery("format", "gedcom"); format {
	case "gedcom":
		rec, err := gedcom.ExportPerson(*person)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	case "json":
		c.JSON(http.StatusOK, person)
	default:
		respondError(c, h.logger, badRequest("format must be gedcom or json"))
	}
}
