package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"noahs-ark/backend/internal/genealogy"
)

// patchBody is a JSON object kept raw so absent keys, explicit nulls and
// values can be told apart
type patchBody map[string]json.RawMessage

func readPatch(c *gin.Context) (patchBody, error) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, badRequest("unreadable body")
	}
	var body patchBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, badRequest("body must be a JSON object")
	}
	return body, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// optional decodes key into a pointer; absent or null leaves it nil
func optional[T any](body patchBody, key string) (*T, error) {
	raw, ok := body[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s", key))
	}
	return &v, nil
}

// nullable decodes key into a tri-state field: absent, null or a value
func nullable[T any](body patchBody, key string) (genealogy.Nullable[T], error) {
	raw, ok := body[key]
	if !ok {
		return genealogy.Nullable[T]{}, nil
	}
	if isNull(raw) {
		return genealogy.SetNull[T](), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return genealogy.Nullable[T]{}, badRequest(fmt.Sprintf("invalid %s", key))
	}
	return genealogy.SetTo(v), nil
}

func personParam(c *gin.Context, name string) (genealogy.PersonID, error) {
	id, err := genealogy.ParsePersonID(c.Param(name))
	if err != nil {
		return genealogy.PersonID{}, badRequest("invalid person id")
	}
	return id, nil
}

func familyParam(c *gin.Context) (genealogy.FamilyID, error) {
	id, err := genealogy.ParseFamilyID(c.Param("id"))
	if err != nil {
		return genealogy.FamilyID{}, badRequest("invalid family id")
	}
	return id, nil
}

func personQuery(c *gin.Context, name string) (genealogy.PersonID, error) {
	raw := c.Query(name)
	if raw == "" {
		return genealogy.PersonID{}, badRequest(name + " is required")
	}
	id, err := genealogy.ParsePersonID(raw)
	if err != nil {
		return genealogy.PersonID{}, badRequest("invalid " + name)
	}
	return id, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid " + name)
	}
	return n, nil
}

func parseWizard(raw *string) (*genealogy.WizardID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := genealogy.ParseWizardID(*raw)
	if err != nil {
		return nil, badRequest("invalid updated_by")
	}
	return &id, nil
}

func parsePersonIDs(raw []string) ([]genealogy.PersonID, error) {
	out := make([]genealogy.PersonID, 0, len(raw))
	for _, s := range raw {
		id, err := genealogy.ParsePersonID(s)
		if err != nil {
			return nil, badRequest(fmt.Sprintf("invalid person id %q", s))
		}
		out = append(out, id)
	}
	return out, nil
}

func parseOptionalPersonID(raw *string) (*genealogy.PersonID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := genealogy.ParsePersonID(*raw)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("invalid person id %q", *raw))
	}
	return &id, nil
}

// parseDate accepts YYYY-MM-DD
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, *raw)
	if err != nil {
		return nil, badRequest("date must be YYYY-MM-DD")
	}
	return &d, nil
}
