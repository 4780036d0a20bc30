package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"specproof/internal/dsl"
)

type reloadReq struct {
	SpecDir string `json:"spec_dir"` // директория с *.yaml
}

func AdminReloadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
				return
			}
		}

		root := strings.TrimSpace(req.SpecDir)
		if root == "" {
			root = svc.Specs.Root()
		}

		// 1) читаем новые спецификации
		specs, err := dsl.LoadAllSpecs(root)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Specification load error", "details": errorDetails(err)})
			return
		}

		// 2) линтер по новому набору до подмены
		if issues := SchemaLint(specs, true); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "specifications have blocking issues",
				"issues":  issues,
				"hint":    "fix specifications and retry",
				"specDir": root,
			})
			return
		}

		// 3) атомарная замена
		svc.Specs.Swap(root, specs)
		svc.Logger.Info("specifications reloaded", "dir", root, "count", len(specs))

		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"specDir": root,
			"specs":   len(specs),
		})
	}
}
