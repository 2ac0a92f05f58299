// Package pageobjects maps the human names used in scenario steps to CSS
// (or XPath) selectors and page paths.
//
// File format:
//
//	pages:
//	  login: /login
//	  dashboard: /app/dashboard
//	elements:
//	  login button: "form#login button[type=submit]"
//	  user menu: "//nav//*[@data-test='user-menu']"
package pageobjects

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknown is returned for names absent from the page-object file.
var ErrUnknown = errors.New("pageobjects: unknown name")

// Set is a loaded page-object file. Names are matched case-insensitively
// with surrounding whitespace ignored.
type Set struct {
	pages    map[string]string
	elements map[string]string
}

type file struct {
	Pages    map[string]string `yaml:"pages"`
	Elements map[string]string `yaml:"elements"`
}

// Load reads a page-object YAML file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pageobjects: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pageobjects: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes page objects from YAML.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	s := &Set{
		pages:    make(map[string]string, len(f.Pages)),
		elements: make(map[string]string, len(f.Elements)),
	}
	for k, v := range f.Pages {
		if err := s.add(s.pages, "page", k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range f.Elements {
		if err := s.add(s.elements, "element", k, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) add(m map[string]string, kind, name, value string) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("empty %s name", kind)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s %q has no value", kind, name)
	}
	if _, dup := m[key]; dup {
		return fmt.Errorf("duplicate %s %q", kind, name)
	}
	m[key] = value
	return nil
}

// Element returns the selector for an element name.
func (s *Set) Element(name string) (string, error) {
	sel, ok := s.elements[normalize(name)]
	if !ok {
		return "", fmt.Errorf("%w: element %q", ErrUnknown, name)
	}
	return sel, nil
}

// Page returns the path registered for a page name.
func (s *Set) Page(name string) (string, error) {
	p, ok := s.pages[normalize(name)]
	if !ok {
		return "", fmt.Errorf("%w: page %q", ErrUnknown, name)
	}
	return p, nil
}

// URL resolves a page name against baseURL. Absolute page URLs are
// returned unchanged.
func (s *Set) URL(baseURL, name string) (string, error) {
	p, err := s.Page(name)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("pageobjects: base url: %w", err)
	}
	ref, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("pageobjects: page %q: %w", name, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Len reports the number of pages and elements.
func (s *Set) Len() (pages, elements int) {
	return len(s.pages), len(s.elements)
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
