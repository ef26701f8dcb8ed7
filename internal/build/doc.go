// Package build runs a complete site build: catalog the content, load the templates,
// render every page and synchronize the assets. The CLI and the preview server both go
// through Service.
package build
