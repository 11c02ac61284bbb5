package router

import (
	apidoc "companion-chat/backend/api"
	"companion-chat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// openAPIValidator loads the schema at schemaPath, or the embedded document
// when no path is configured, and serves it under /api/docs.
func (r *Router) openAPIValidator(schemaPath string) *validator.OpenAPIValidator {
	var (
		v   *validator.OpenAPIValidator
		err error
	)
	if schemaPath != "" {
		v, err = validator.NewOpenAPIValidator(schemaPath)
	} else {
		v, err = validator.NewOpenAPIValidatorFromData(apidoc.OpenAPISpec)
	}
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator, skipping validation", "error", err, "path", schemaPath)
		return nil
	}

	if schemaPath != "" {
		r.Engine.StaticFile("/api/docs/openapi.yaml", schemaPath)
	} else {
		r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
			c.Data(200, "application/yaml", apidoc.OpenAPISpec)
		})
	}
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)
	return v
}
