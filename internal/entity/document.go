package entity

import (
	"image"
)

// Page is one rasterized page. Index is 1-based.
type Page struct {
	Index int
	Image image.Image
}

// Document is the ordered page sequence of one source file. It is not
// modified once segmentation starts.
type Document struct {
	Source string
	Pages  []Page
}

// PageCount returns the number of pages.
func (d Document) PageCount() int {
	return len(d.Pages)
}
