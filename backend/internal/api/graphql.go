package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tailor-inc/graphql"

	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/genealogy"
)

type graphQLHandler struct {
	svc    *Service
	schema graphql.Schema
}

type graphQLRequest struct {
	Query         string                 `json:"query" binding:"required"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// NewGraphQLHandler builds the read-only query schema over svc
func NewGraphQLHandler(svc *Service) (*graphQLHandler, error) {
	h := &graphQLHandler{svc: svc}
	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: h.queryType()})
	if err != nil {
		return nil, err
	}
	h.schema = schema
	return h, nil
}

func (h *graphQLHandler) serve(c *gin.Context) {
	var req graphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        c.Request.Context(),
	})
	c.JSON(http.StatusOK, result)
}

var personType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Person",
	Fields: graphql.Fields{
		"id":            &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"firstName":     &graphql.Field{Type: graphql.String},
		"surname":       &graphql.Field{Type: graphql.String},
		"surnamePrefix": &graphql.Field{Type: graphql.String},
		"nicknames":     &graphql.Field{Type: graphql.NewList(graphql.String)},
		"sex":           &graphql.Field{Type: graphql.String},
		"notes":         &graphql.Field{Type: graphql.String},
		"public":        &graphql.Field{Type: graphql.Boolean},
	},
})

var sosaEntryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SosaEntry",
	Fields: graphql.Fields{
		"person":     &graphql.Field{Type: personType},
		"sosa":       &graphql.Field{Type: graphql.Int},
		"generation": &graphql.Field{Type: graphql.Int},
		"paternal":   &graphql.Field{Type: graphql.Boolean},
	},
})

var implexType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Implex",
	Fields: graphql.Fields{
		"personId": &graphql.Field{Type: graphql.String},
		"numbers":  &graphql.Field{Type: graphql.NewList(graphql.Int)},
	},
})

var sosaType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Sosa",
	Fields: graphql.Fields{
		"root":      &graphql.Field{Type: graphql.String},
		"ancestors": &graphql.Field{Type: graphql.NewList(sosaEntryType)},
		"implex":    &graphql.Field{Type: graphql.NewList(implexType)},
	},
})

var relationshipType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Relationship",
	Fields: graphql.Fields{
		"person1":     &graphql.Field{Type: graphql.String},
		"person2":     &graphql.Field{Type: graphql.String},
		"related":     &graphql.Field{Type: graphql.Boolean},
		"degree":      &graphql.Field{Type: graphql.Int},
		"description": &graphql.Field{Type: graphql.String},
	},
})

func (h *graphQLHandler) queryType() *graphql.Object {
	idArg := graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"person": &graphql.Field{
				Type: personType,
				Args: idArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := personArg(p, "id")
					if err != nil {
						return nil, err
					}
					person, err := h.svc.Person(p.Context, id)
					if err != nil {
						return nil, err
					}
					return personMap(person), nil
				},
			},
			"searchPersons": &graphql.Field{
				Type: graphql.NewList(personType),
				Args: graphql.FieldConfigArgument{
					"surname":   &graphql.ArgumentConfig{Type: graphql.String},
					"firstName": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: constants.SearchLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					surname, _ := p.Args["surname"].(string)
					firstName, _ := p.Args["firstName"].(string)
					limit, _ := p.Args["limit"].(int)
					persons, err := h.svc.Search(p.Context, surname, firstName, limit)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(persons))
					for i := range persons {
						out[i] = personMap(&persons[i])
					}
					return out, nil
				},
			},
			"ancestors": &graphql.Field{
				Type: graphql.NewList(personType),
				Args: graphql.FieldConfigArgument{
					"id":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"generations": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: constants.DefaultAncestorGenerations},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := personArg(p, "id")
					if err != nil {
						return nil, err
					}
					generations, _ := p.Args["generations"].(int)
					ancestors, err := h.svc.Ancestors(p.Context, id, generations)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(ancestors))
					for i, a := range ancestors {
						out[i] = summaryMap(a)
					}
					return out, nil
				},
			},
			"sosa": &graphql.Field{
				Type: sosaType,
				Args: idArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := personArg(p, "id")
					if err != nil {
						return nil, err
					}
					view, err := h.svc.Sosa(p.Context, id)
					if err != nil {
						return nil, err
					}
					return sosaMap(view), nil
				},
			},
			"consanguinity": &graphql.Field{
				Type: graphql.Float,
				Args: idArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := personArg(p, "id")
					if err != nil {
						return nil, err
					}
					view, err := h.svc.Consanguinity(p.Context, id)
					if err != nil {
						return nil, err
					}
					return view.Coefficient, nil
				},
			},
			"calculateRelationship": &graphql.Field{
				Type: relationshipType,
				Args: graphql.FieldConfigArgument{
					"person1": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"person2": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					a, err := personArg(p, "person1")
					if err != nil {
						return nil, err
					}
					b, err := personArg(p, "person2")
					if err != nil {
						return nil, err
					}
					view, err := h.svc.Relationship(p.Context, a, b)
					if err != nil {
						return nil, err
					}
					out := map[string]interface{}{
						"person1":     view.Person1.String(),
						"person2":     view.Person2.String(),
						"related":     view.Related,
						"description": view.Description,
					}
					if view.Degree != nil {
						out["degree"] = *view.Degree
					}
					return out, nil
				},
			},
		},
	})
}

func personArg(p graphql.ResolveParams, name string) (genealogy.PersonID, error) {
	raw, _ := p.Args[name].(string)
	id, err := genealogy.ParsePersonID(raw)
	if err != nil {
		return genealogy.PersonID{}, badRequest("invalid " + name)
	}
	return id, nil
}

func personMap(p *genealogy.Person) map[string]interface{} {
	out := map[string]interface{}{
		"id":        p.ID.String(),
		"firstName": p.FirstName,
		"surname":   p.Surname,
		"nicknames": p.Nicknames,
		"sex":       string(p.Sex),
		"public":    p.Public,
	}
	if p.SurnamePrefix != nil {
		out["surnamePrefix"] = *p.SurnamePrefix
	}
	if p.Notes != nil {
		out["notes"] = *p.Notes
	}
	return out
}

func summaryMap(s PersonSummary) map[string]interface{} {
	return map[string]interface{}{
		"id":        s.ID.String(),
		"firstName": s.FirstName,
		"surname":   s.Surname,
		"sex":       string(s.Sex),
	}
}

func sosaMap(view *SosaView) map[string]interface{} {
	ancestors := make([]map[string]interface{}, len(view.Ancestors))
	for i, e := range view.Ancestors {
		ancestors[i] = map[string]interface{}{
			"person":     summaryMap(e.PersonSummary),
			"sosa":       int(e.Sosa),
			"generation": e.Generation,
			"paternal":   e.Paternal,
		}
	}
	implex := make([]map[string]interface{}, len(view.Implex))
	for i, e := range view.Implex {
		numbers := make([]int, len(e.Numbers))
		for j, n := range e.Numbers {
			numbers[j] = int(n)
		}
		implex[i] = map[string]interface{}{"personId": e.PersonID.String(), "numbers": numbers}
	}
	return map[string]interface{}{
		"root":      view.Root.String(),
		"ancestors": ancestors,
		"implex":    implex,
	}
}
