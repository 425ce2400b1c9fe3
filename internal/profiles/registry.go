// Package profiles loads the site-profile registry that maps URLs to
// selector configurations for HTML-mode crawls.
package profiles

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/news-harvester/internal/selector"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// SiteProfile is a named target site with its extraction rules.
type SiteProfile struct {
	Name      string
	BaseURL   string
	Selectors selector.Config
}

// Category is a generic fallback selector set (news, blog, general).
type Category struct {
	Name      string
	Selectors selector.Config
}

// Registry is an ordered, read-only collection of site profiles and categories.
// It is safe for concurrent use.
type Registry struct {
	sites      []SiteProfile
	categories []Category
}

type fileFormat struct {
	Sites []struct {
		Name      string              `yaml:"name"`
		URL       string              `yaml:"url"`
		Selectors map[string][]string `yaml:"selectors"`
	} `yaml:"sites"`
	Categories []struct {
		Name      string              `yaml:"name"`
		Selectors map[string][]string `yaml:"selectors"`
	} `yaml:"categories"`
}

// Load reads the registry from path, or the embedded default when path is empty.
func Load(path string, logger *zap.Logger) (*Registry, error) {
	if path == "" {
		return Parse(defaultProfiles, logger)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return Parse(data, logger)
}

// Parse builds a Registry from YAML. Malformed selectors are logged and
// never match; duplicate or empty names are rejected.
func Parse(data []byte, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	reg := &Registry{}
	seen := map[string]struct{}{}
	for _, s := range raw.Sites {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return nil, errors.New("site profile without a name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate site profile %q", name)
		}
		seen[name] = struct{}{}
		cfg, errs := selector.ParseConfig(s.Selectors)
		logSelectorErrors(logger, "site:"+name, errs)
		reg.sites = append(reg.sites, SiteProfile{Name: name, BaseURL: strings.TrimSpace(s.URL), Selectors: cfg})
	}
	seenCat := map[string]struct{}{}
	for _, c := range raw.Categories {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, errors.New("category without a name")
		}
		if _, dup := seenCat[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		seenCat[name] = struct{}{}
		cfg, errs := selector.ParseConfig(c.Selectors)
		logSelectorErrors(logger, "category:"+name, errs)
		reg.categories = append(reg.categories, Category{Name: name, Selectors: cfg})
	}
	return reg, nil
}

func logSelectorErrors(logger *zap.Logger, owner string, errs []error) {
	for _, err := range errs {
		logger.Warn("ignoring malformed selector", zap.String("profile", owner), zap.Error(err))
	}
}

// Sites returns the site profiles in file order.
func (r *Registry) Sites() []SiteProfile {
	if r == nil {
		return nil
	}
	return append([]SiteProfile(nil), r.sites...)
}

// Categories returns the categories in file order.
func (r *Registry) Categories() []Category {
	if r == nil {
		return nil
	}
	return append([]Category(nil), r.categories...)
}

// Site looks up a profile by name.
func (r *Registry) Site(name string) (SiteProfile, bool) {
	if r == nil {
		return SiteProfile{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range r.sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteProfile{}, false
}

// Resolve picks the selectors for rawURL: the first site whose name occurs in
// the URL, else the first category whose name does, else nil (built-in
// defaults). The second result names the match, e.g. "site:ndtv".
func (r *Registry) Resolve(rawURL string) (selector.Config, string) {
	if r == nil {
		return nil, ""
	}
	lower := strings.ToLower(rawURL)
	for _, s := range r.sites {
		if strings.Contains(lower, s.Name) {
			return s.Selectors, "site:" + s.Name
		}
	}
	for _, c := range r.categories {
		if strings.Contains(lower, c.Name) {
			return c.Selectors, "category:" + c.Name
		}
	}
	return nil, ""
}
