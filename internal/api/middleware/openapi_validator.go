package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	"squadkeeper.io/keeper/internal/api/openapi"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
)

// MustOpenAPIValidator creates the request validator and panics on setup failure.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests against the embedded OpenAPI
// document. Paths the document does not describe pass through untouched.
func NewOpenAPIValidator(basePath string) (gin.HandlerFunc, error) {
	doc, err := openapi.Load(context.Background())
	if err != nil {
		return nil, err
	}
	return newValidator(doc, basePath)
}

func newValidator(doc *openapi3.T, basePath string) (gin.HandlerFunc, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	basePath = normalizeBasePath(basePath)

	opts := &openapi3filter.Options{
		// Authentication is handled by ActorAuth.
		AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
		MultiError:         false,
	}

	return func(c *gin.Context) {
		req := c.Request
		origPath, origRawPath := req.URL.Path, req.URL.RawPath
		req.URL.Path = normalizeValidationPath(basePath, origPath)
		if origRawPath != "" {
			req.URL.RawPath = normalizeValidationPath(basePath, origRawPath)
		}

		route, pathParams, routeErr := router.FindRoute(req)
		if routeErr == nil {
			err := openapi3filter.ValidateRequest(req.Context(), &openapi3filter.RequestValidationInput{
				Request:    req,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			})
			req.URL.Path, req.URL.RawPath = origPath, origRawPath
			if err != nil {
				abortInvalid(c, err.Error())
				return
			}
			c.Next()
			return
		}

		req.URL.Path, req.URL.RawPath = origPath, origRawPath
		if isPathNotFoundError(routeErr) {
			c.Next()
			return
		}
		if isMethodNotAllowed(routeErr) {
			c.Next()
			return
		}
		abortInvalid(c, routeErr.Error())
	}, nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	return "/" + strings.Trim(basePath, "/")
}

func normalizeValidationPath(basePath, path string) string {
	if basePath == "" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == basePath {
		return "/"
	}
	if strings.HasPrefix(path, basePath+"/") {
		return "/" + strings.TrimPrefix(path, basePath+"/")
	}
	return path
}

func isPathNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if err == routers.ErrPathNotFound {
		return true
	}
	return strings.Contains(err.Error(), routers.ErrPathNotFound.Error())
}

func isMethodNotAllowed(err error) bool {
	return err != nil && strings.Contains(err.Error(), routers.ErrMethodNotAllowed.Error())
}

func abortInvalid(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":    apperrors.CodeValidation,
		"message": message,
	})
}
