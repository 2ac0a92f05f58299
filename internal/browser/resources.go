package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// pluralTypes maps the plural names accepted in configuration to the
// resource types CDP reports, lower-cased.
var pluralTypes = map[string]string{
	"images":      "image",
	"fonts":       "font",
	"media":       "media",
	"stylesheets": "stylesheet",
	"scripts":     "script",
}

// blockList decides which requests a tab fails before they reach the page.
// The top-level document is never blocked.
type blockList struct {
	types map[string]bool
	urls  []string
}

func newBlockList(types, urls []string) *blockList {
	bl := &blockList{types: make(map[string]bool, len(types))}
	for _, t := range types {
		name := strings.ToLower(strings.TrimSpace(t))
		if name == "" {
			continue
		}
		if single, ok := pluralTypes[name]; ok {
			name = single
		}
		bl.types[name] = true
	}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			bl.urls = append(bl.urls, u)
		}
	}
	return bl
}

func (bl *blockList) empty() bool {
	return len(bl.types) == 0 && len(bl.urls) == 0
}

// blocks reports whether a request of type rt for url must fail.
func (bl *blockList) blocks(rt proto.NetworkResourceType, url string) bool {
	if rt == proto.NetworkResourceTypeDocument {
		return false
	}
	if bl.types[strings.ToLower(string(rt))] {
		return true
	}
	for _, frag := range bl.urls {
		if strings.Contains(url, frag) {
			return true
		}
	}
	return false
}

// hijack installs bl on page. The returned router must be stopped when the
// tab closes.
func (bl *blockList) hijack(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if bl.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("browser: hijack: %w", err)
	}
	go router.Run()
	return router, nil
}
