package constants

import (
	"strings"
)

// WindowMode is the page-partitioning scheme.
type WindowMode string

const (
	WindowWhole      WindowMode = "whole"
	WindowVertical   WindowMode = "vertical"
	WindowHorizontal WindowMode = "horizontal"
	WindowQuadrant   WindowMode = "quadrant"
	WindowAuto       WindowMode = "auto"
)

// Window names. Quadrant names combine the vertical and horizontal halves.
const (
	RegionWhole       = "whole"
	RegionTop         = "top"
	RegionBottom      = "bottom"
	RegionLeft        = "left"
	RegionRight       = "right"
	RegionTopLeft     = "top_left"
	RegionTopRight    = "top_right"
	RegionBottomLeft  = "bottom_left"
	RegionBottomRight = "bottom_right"
)

// AutoAspectThreshold is the width/height ratio above which auto mode picks
// horizontal instead of vertical.
const AutoAspectThreshold = 1.3

var allWindowModes = []WindowMode{
	WindowWhole,
	WindowVertical,
	WindowHorizontal,
	WindowQuadrant,
	WindowAuto,
}

// windows lists the valid window names per concrete mode in canonical order.
var windows = map[WindowMode][]string{
	WindowWhole:      {RegionWhole},
	WindowVertical:   {RegionTop, RegionBottom},
	WindowHorizontal: {RegionLeft, RegionRight},
	WindowQuadrant:   {RegionTopLeft, RegionTopRight, RegionBottomLeft, RegionBottomRight},
}

func WindowModesAsStrings() []string {
	result := make([]string, len(allWindowModes))
	for i, m := range allWindowModes {
		result[i] = string(m)
	}
	return result
}

// ParseWindowMode canonicalizes user input. Unknown input yields vertical and false.
func ParseWindowMode(input string) (WindowMode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return WindowVertical, false
	}

	synonyms := map[string]WindowMode{
		"full":      WindowWhole,
		"page":      WindowWhole,
		"split":     WindowVertical,
		"quadrants": WindowQuadrant,
		"quad":      WindowQuadrant,
	}
	if m, ok := synonyms[normalized]; ok {
		return m, true
	}

	for _, m := range allWindowModes {
		if normalized == string(m) {
			return m, true
		}
	}
	return WindowVertical, false
}

// Windows returns the canonical window names of a concrete mode. Auto has none
// until it is resolved against a page.
func (m WindowMode) Windows() []string {
	names := windows[m]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// RegionCount is the number of regions a full selection of the mode produces.
func (m WindowMode) RegionCount() int {
	switch m {
	case WindowQuadrant:
		return 4
	case WindowVertical, WindowHorizontal, WindowAuto:
		return 2
	default:
		return 1
	}
}

// ValidWindow reports whether name belongs to mode.
func (m WindowMode) ValidWindow(name string) bool {
	for _, w := range windows[m] {
		if w == name {
			return true
		}
	}
	return false
}

// WindowRank returns the canonical position of name within mode, or len(windows)
// when name does not belong to it.
func (m WindowMode) WindowRank(name string) int {
	names := windows[m]
	for i, w := range names {
		if w == name {
			return i
		}
	}
	return len(names)
}

// ResolveAuto picks the concrete mode for auto from the page geometry.
func ResolveAuto(width, height int) WindowMode {
	if height > 0 && float64(width)/float64(height) > AutoAspectThreshold {
		return WindowHorizontal
	}
	return WindowVertical
}
