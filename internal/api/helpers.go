package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"specproof/internal/dsl"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// lookupSpec достаёт :name; при промахе сам отвечает 404.
func lookupSpec(c *gin.Context, svc *Service) (*dsl.Specification, bool) {
	spec, ok := svc.Specs.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Specification not found", "name": c.Param("name")})
		return nil, false
	}
	return spec, true
}

// errorDetails раскрывает errors.Join в список строк.
func errorDetails(err error) []string {
	if err == nil {
		return []string{}
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, errorDetails(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return defaultRunsLimit
	}
	if n > maxRunsLimit {
		return maxRunsLimit
	}
	return n
}
