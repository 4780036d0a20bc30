package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"specproof/internal/dsl"
)

// ===== META HANDLERS =====

type metaSpecListItem struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Entities int    `json:"entities"`
	Services int    `json:"services"`
}

func SpecListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		specs := svc.Specs.List()
		out := make([]metaSpecListItem, 0, len(specs))
		for _, s := range specs {
			out = append(out, metaSpecListItem{
				Name:     s.Name,
				Version:  s.Version,
				Entities: len(s.Entities),
				Services: len(s.Services),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Indexed    bool     `json:"indexed,omitempty"`
	ForeignKey string   `json:"foreignKey,omitempty"`
	Precision  *int     `json:"precision,omitempty"`
	Scale      *int     `json:"scale,omitempty"`
	Length     *int     `json:"length,omitempty"`
	Values     []string `json:"values,omitempty"`
}

type metaInvariant struct {
	Name     string `json:"name"`
	Expr     string `json:"expr"`
	Severity string `json:"severity"`
}

type metaEntity struct {
	Name       string          `json:"name"`
	Fields     []metaField     `json:"fields"`
	Invariants []metaInvariant `json:"invariants"`
}

type metaInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type metaService struct {
	Name           string      `json:"name"`
	Inputs         []metaInput `json:"inputs"`
	Preconditions  []string    `json:"preconditions"`
	Postconditions []string    `json:"postconditions,omitempty"`
	Strategy       string      `json:"strategy"`
	Isolation      string      `json:"isolation,omitempty"`
	Timeout        *int        `json:"timeout,omitempty"`
	RetryPolicy    string      `json:"retryPolicy,omitempty"`
}

type metaSpec struct {
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Entities []metaEntity  `json:"entities"`
	Services []metaService `json:"services"`
}

func toMeta(s *dsl.Specification) metaSpec {
	out := metaSpec{
		Name:     s.Name,
		Version:  s.Version,
		Entities: make([]metaEntity, 0, len(s.Entities)),
		Services: make([]metaService, 0, len(s.Services)),
	}
	for _, e := range s.Entities {
		me := metaEntity{Name: e.Name, Fields: make([]metaField, 0, len(e.Fields)), Invariants: make([]metaInvariant, 0, len(e.Invariants))}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, metaField{
				Name:       f.Name,
				Type:       string(f.Type),
				PrimaryKey: f.PrimaryKey,
				Indexed:    f.Indexed,
				ForeignKey: f.ForeignKey,
				Precision:  f.Precision,
				Scale:      f.Scale,
				Length:     f.Length,
				Values:     append([]string(nil), f.Values...),
			})
		}
		for _, inv := range e.Invariants {
			me.Invariants = append(me.Invariants, metaInvariant{Name: inv.Name, Expr: inv.Expr, Severity: string(inv.Severity)})
		}
		out.Entities = append(out.Entities, me)
	}
	for _, sv := range s.Services {
		ms := metaService{
			Name:           sv.Name,
			Inputs:         make([]metaInput, 0, len(sv.Contract.Inputs)),
			Preconditions:  append([]string{}, sv.Contract.Preconditions...),
			Postconditions: sv.Contract.Postconditions,
			Strategy:       string(sv.Strategy),
			Isolation:      sv.Isolation,
			Timeout:        sv.Timeout,
			RetryPolicy:    sv.RetryPolicy,
		}
		for _, in := range sv.Contract.Inputs {
			ms.Inputs = append(ms.Inputs, metaInput{Name: in.Name, Type: string(in.Type)})
		}
		out.Services = append(out.Services, ms)
	}
	return out
}

func SpecMetaHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toMeta(spec))
	}
}

func LintHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		issues := dsl.Lint(spec)
		if issues == nil {
			issues = []dsl.Issue{}
		}
		c.JSON(http.StatusOK, gin.H{
			"spec":     spec.Name,
			"issues":   issues,
			"messages": dsl.Validate(spec),
		})
	}
}
