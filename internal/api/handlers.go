package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"specproof/internal/counterexample"
	"specproof/internal/dsl"
	"specproof/internal/runs"
	"specproof/internal/verify"
)

const maxSpecBody = 1 << 20

type verifyResponse struct {
	RunID  string         `json:"run_id,omitempty"`
	Spec   string         `json:"spec"`
	Result *verify.Result `json:"result"`
}

// record сохраняет запуск. Сбой хранилища не портит ответ: результат уже посчитан.
// Если клиент ушёл во время проверки, unknown от отмены в историю не пишем.
func (svc *Service) record(c *gin.Context, spec *dsl.Specification, res *verify.Result) string {
	if err := c.Request.Context().Err(); err != nil {
		svc.Logger.Info("run not recorded: request ended", "spec", spec.Name, "error", err)
		return ""
	}
	run := runs.NewRun(svc.IDs, spec.Name, spec.Version, *res)
	if err := svc.Runs.Save(c.Request.Context(), run); err != nil {
		svc.Logger.Warn("run not saved", "spec", spec.Name, "error", err)
		return ""
	}
	return run.ID
}

// POST /api/specs/:name/verify
func VerifyHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		res := svc.Verifier.Verify(c.Request.Context(), spec)
		c.JSON(http.StatusOK, verifyResponse{
			RunID:  svc.record(c, spec, res),
			Spec:   spec.Name,
			Result: res,
		})
	}
}

// POST /api/verify — документ спецификации в теле (YAML или JSON)
func AdhocVerifyHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSpecBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read body", "details": err.Error()})
			return
		}
		spec, err := dsl.Parse(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid specification", "details": errorDetails(err)})
			return
		}
		res := svc.Verifier.Verify(c.Request.Context(), spec)
		c.JSON(http.StatusOK, verifyResponse{
			RunID:  svc.record(c, spec, res),
			Spec:   spec.Name,
			Result: res,
		})
	}
}

// GET /api/specs/:name/runs?limit=N
func RunsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		list, err := svc.Runs.ListBySpec(c.Request.Context(), spec.Name, parseLimit(c.Query("limit")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Run history unavailable", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GET /api/runs/:id
func RunHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := svc.Runs.Get(c.Request.Context(), c.Param("id"))
		switch {
		case errors.Is(err, runs.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Run history unavailable", "details": err.Error()})
		default:
			c.JSON(http.StatusOK, run)
		}
	}
}

// GET /api/specs/:name/suspicious
func SuspiciousHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		states, err := svc.Finder.FindSuspiciousStates(c.Request.Context(), spec)
		out := gin.H{"spec": spec.Name, "states": states}
		if err != nil {
			// частичный результат: упавшие пробы перечисляем отдельно
			out["errors"] = errorDetails(err)
		}
		c.JSON(http.StatusOK, out)
	}
}

type counterexampleReq struct {
	Entity    string `json:"entity" binding:"required"`
	Invariant string `json:"invariant" binding:"required"`
}

// POST /api/specs/:name/counterexample
func CounterexampleHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		spec, ok := lookupSpec(c, svc)
		if !ok {
			return
		}
		var req counterexampleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
			return
		}

		st, err := svc.Finder.FindCounterexampleForInvariant(c.Request.Context(), spec, req.Entity, req.Invariant)
		switch {
		case errors.Is(err, counterexample.ErrUnknownEntity):
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found", "details": err.Error()})
		case errors.Is(err, counterexample.ErrUnsupportedOperator), errors.Is(err, counterexample.ErrNoField):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invariant not supported", "details": err.Error()})
		case errors.Is(err, counterexample.ErrIndeterminate):
			c.JSON(http.StatusOK, gin.H{"status": "unknown", "details": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed", "details": err.Error()})
		case st == nil:
			c.JSON(http.StatusOK, gin.H{"status": "holds"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "violated", "state": st})
		}
	}
}
