// Package errors provides foundational, type-safe error primitives used across mllt.
//
// Every failure the build pipeline can report is a ClassifiedError carrying a category
// (config, catalog, template_load, render, asset_copy, ...), a severity and a small
// context map naming the offending page, partial or path.
//
// Fatal categories (config, catalog, template_load) stop a build before any output is
// written. Render and asset_copy errors are collected per page or per asset and reported
// together when the build ends.
//
// Example usage:
//
//	err := errors.RenderError("missing variable").
//		WithContext("page", "blog/index").
//		WithContext("variable", "params.title").
//		Build()
package errors
