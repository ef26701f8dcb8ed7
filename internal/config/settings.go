package config

import (
	"path/filepath"
	"runtime"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/foundation/normalization"
	"git.home.luguber.info/inful/mllt/internal/value"
)

// AssetCompare selects the freshness signature used by the asset synchronizer.
type AssetCompare string

const (
	// AssetCompareMTime compares size and modification time.
	AssetCompareMTime AssetCompare = "mtime"
	// AssetCompareChecksum compares size and SHA-256 content hash.
	AssetCompareChecksum AssetCompare = "checksum"
)

var assetCompareNormalizer = normalization.NewEnumNormalizer("asset_compare", map[string]AssetCompare{
	"mtime":    AssetCompareMTime,
	"checksum": AssetCompareChecksum,
	"hash":     AssetCompareChecksum,
}, AssetCompareMTime)

// Built-in defaults for options absent from both the CLI and the file.
const (
	DefaultBaseURL    = ""
	DefaultPublishDir = "./html"
	DefaultContentDir = "./content"
	DefaultThemeDir   = "./theme"
	DefaultAssetsDir  = "./assets"
)

// Overrides is the command-line option bag. A nil field was not supplied.
type Overrides struct {
	BaseURL *string
	Output  *string
	Content *string
	Theme   *string
	Assets  *string
	Strict  *bool
	Workers *int
}

// Settings is the resolved site configuration. It is immutable: fields are unexported and
// Params hands out copies.
type Settings struct {
	baseURL      string
	outputDir    string
	contentDir   string
	themeDir     string
	assetsDir    string
	strict       bool
	prune        bool
	assetCompare AssetCompare
	workers      int
	configPath   string
	params       value.Value
}

// BaseURL is exposed to templates as site.baseURL.
func (s *Settings) BaseURL() string { return s.baseURL }

// OutputDir is the root pages and assets are written to.
func (s *Settings) OutputDir() string { return s.outputDir }

// ContentDir is the root of the page templates.
func (s *Settings) ContentDir() string { return s.contentDir }

// ThemeDir is the root of the theme partials.
func (s *Settings) ThemeDir() string { return s.themeDir }

// AssetsDir is the root of the static assets.
func (s *Settings) AssetsDir() string { return s.assetsDir }

// Strict reports whether unresolved template variables fail a page.
func (s *Settings) Strict() bool { return s.strict }

// Prune reports whether assets removed from the source are deleted from the output.
func (s *Settings) Prune() bool { return s.prune }

// AssetCompare is the freshness signature used for assets.
func (s *Settings) AssetCompare() AssetCompare { return s.assetCompare }

// Workers bounds concurrent page renders and asset copies.
func (s *Settings) Workers() int { return s.workers }

// ConfigPath is the file the settings were loaded from; empty for in-memory documents.
func (s *Settings) ConfigPath() string { return s.configPath }

// Params is the [params] table.
func (s *Settings) Params() value.Value { return s.params }

// SiteMap is the `site` binding exposed to templates. Keys follow the [site] table.
func (s *Settings) SiteMap() map[string]any {
	return map[string]any{
		"baseURL":    s.baseURL,
		"publishdir": s.outputDir,
		"content":    s.contentDir,
		"theme":      s.themeDir,
		"assets":     s.assetsDir,
		"strict":     s.strict,
	}
}

// Resolve merges a document with CLI overrides. For every option the precedence is
// CLI (if supplied) > file (if present) > built-in default. Paths taken from the file or
// from the defaults are relative to the file's directory; CLI paths are used as given.
func Resolve(doc *Document, cli Overrides) (*Settings, error) {
	if doc == nil {
		doc = &Document{}
	}
	base := doc.Dir()
	site := doc.Site

	s := &Settings{configPath: doc.Path()}
	s.baseURL = pick(cli.BaseURL, site.BaseURL, DefaultBaseURL)
	s.strict = pick(cli.Strict, site.Strict, false)
	s.prune = pick(nil, site.Prune, true)
	s.workers = pick(cli.Workers, site.Workers, runtime.NumCPU())

	paths := []struct {
		key  string
		cli  *string
		file *string
		def  string
		dst  *string
	}{
		{"publishdir", cli.Output, site.PublishDir, DefaultPublishDir, &s.outputDir},
		{"content", cli.Content, site.Content, DefaultContentDir, &s.contentDir},
		{"theme", cli.Theme, site.Theme, DefaultThemeDir, &s.themeDir},
		{"assets", cli.Assets, site.Assets, DefaultAssetsDir, &s.assetsDir},
	}
	for _, p := range paths {
		resolved, err := resolvePath(p.key, p.cli, p.file, p.def, base)
		if err != nil {
			return nil, err
		}
		*p.dst = resolved
	}

	compare, err := assetCompareNormalizer.NormalizeWithValidation(pick(nil, site.AssetCompare, string(AssetCompareMTime)))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid asset comparison mode").
			Fatal().
			WithContext("key", "site.asset_compare").
			Build()
	}
	s.assetCompare = compare

	if s.workers < 1 {
		return nil, errors.ConfigError("worker count must be at least 1").
			WithContext("key", "site.workers").
			WithContext("value", s.workers).
			Build()
	}

	params, err := value.From(doc.Params)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "unsupported value in [params]").
			Fatal().
			WithContext("key", "params").
			Build()
	}
	if params.IsNull() {
		params = value.NewMap(nil)
	}
	s.params = params

	return s, nil
}

func pick[T any](cli, file *T, def T) T {
	if cli != nil {
		return *cli
	}
	if file != nil {
		return *file
	}
	return def
}

func resolvePath(key string, cli, file *string, def, base string) (string, error) {
	var resolved string
	fromFile := false
	switch {
	case cli != nil:
		resolved = *cli
	case file != nil:
		resolved = *file
		fromFile = true
	default:
		resolved = def
		fromFile = true
	}

	if resolved == "" {
		return "", errors.ConfigError("path option resolves to an empty string").
			WithContext("key", "site."+key).
			Build()
	}
	if fromFile && base != "" && !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	return filepath.Clean(resolved), nil
}
