package gateway

import (
	"errors"
	"strings"
)

// ErrEmptySelector is returned for an empty or whitespace-only selector.
var ErrEmptySelector = errors.New("gateway: channel selector must not be empty")

// ErrAllMixed is returned when "all" appears alongside other selector tokens.
var ErrAllMixed = errors.New(`gateway: "all" cannot be combined with other selector tokens`)

// ParseSelector resolves a --message-gateway selector string against the set
// of known (enabled) channel ids, per spec.md §4.9. It returns the selected
// id set and any selector tokens that did not match a known channel (to be
// logged by the caller, not treated as an error).
func ParseSelector(selector string, knownIDs []string) (selected map[string]bool, ignored []string, err error) {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return nil, nil, ErrEmptySelector
	}

	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}

	if trimmed == "all" {
		all := make(map[string]bool, len(known))
		for id := range known {
			all[id] = true
		}
		return all, nil, nil
	}

	tokens := strings.Split(trimmed, ",")
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "all" {
			return nil, nil, ErrAllMixed
		}
	}

	include := make(map[string]bool)
	exclude := make(map[string]bool)
	anyPositive := false

	for _, raw := range tokens {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "!") {
			exclude[strings.TrimSpace(tok[1:])] = true
			continue
		}
		anyPositive = true
		if known[tok] {
			include[tok] = true
		} else {
			ignored = append(ignored, tok)
		}
	}

	if !anyPositive {
		for id := range known {
			include[id] = true
		}
	}
	for id := range exclude {
		delete(include, id)
	}

	return include, ignored, nil
}
