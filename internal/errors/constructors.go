package errors

import "fmt"

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *SiteError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *SiteError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

// Content errors

func FrontmatterError(page string, cause error) *SiteError {
	return Wrap(cause, CategoryContent, SeverityError, "frontmatter parse failed").
		WithContext("page", page)
}

// DuplicateRoute carries the colliding route in the message itself so the
// operator sees it without structured log tooling.
func DuplicateRoute(route string) *SiteError {
	return New(CategoryContent, SeverityFatal, fmt.Sprintf("duplicate route path %q", route)).
		WithContext("route", route)
}

// Page production errors

func RenderError(route string, cause error) *SiteError {
	return Wrap(cause, CategoryRender, SeverityError, "page render failed").
		WithContext("route", route)
}

func BundleError(page string, cause error) *SiteError {
	return Wrap(cause, CategoryBundle, SeverityError, "bundle build failed").
		WithContext("page", page)
}

// Infrastructure errors

func OutputDirError(operation string, cause error) *SiteError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "output directory operation failed").
		WithContext("operation", operation)
}

func InternalError(message string, cause error) *SiteError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
