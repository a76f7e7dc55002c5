package pkg

// MaxPageButtons is the default number of numbered buttons in a page window.
const MaxPageButtons = 5

// TotalPages returns the number of pages needed for total rows. An empty
// result still has one page.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// PageLink is one entry of a pagination bar: either a page number or an
// ellipsis standing for the skipped range.
type PageLink struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// PageWindow lists the page links to render around page. The first and last
// pages are always present; gaps are shown as a single ellipsis.
func PageWindow(page, totalPages, maxButtons int) []PageLink {
	if totalPages < 1 {
		totalPages = 1
	}
	if maxButtons < 3 {
		maxButtons = MaxPageButtons
	}

	link := func(n int) PageLink { return PageLink{Page: n, Current: n == page} }

	if totalPages <= maxButtons {
		out := make([]PageLink, 0, totalPages)
		for n := 1; n <= totalPages; n++ {
			out = append(out, link(n))
		}
		return out
	}

	half := maxButtons / 2
	start := max(2, page-half)
	end := min(totalPages-1, page+half)
	if page <= half+1 {
		start, end = 2, maxButtons-1
	}
	if page+half >= totalPages {
		start, end = totalPages-maxButtons+2, totalPages-1
	}

	out := []PageLink{link(1)}
	if start > 2 {
		out = append(out, PageLink{Ellipsis: true})
	}
	for n := start; n <= end; n++ {
		out = append(out, link(n))
	}
	if end < totalPages-1 {
		out = append(out, PageLink{Ellipsis: true})
	}
	return append(out, link(totalPages))
}

// ShortcutTarget maps a pagination shortcut key to the page it selects.
// ArrowRight and ArrowLeft step one page, ArrowUp jumps to the first page
// and ArrowDown to the last. Keys are ignored while the user is typing in an
// input or while the list is loading. ok is false when the key does nothing.
func ShortcutTarget(key string, page, totalPages int, typing, loading bool) (target int, ok bool) {
	if typing || loading {
		return 0, false
	}
	switch key {
	case "ArrowRight":
		target = page + 1
		if page >= totalPages {
			return 0, false
		}
	case "ArrowLeft":
		target = page - 1
		if page <= 1 {
			return 0, false
		}
	case "ArrowUp":
		target = 1
	case "ArrowDown":
		target = totalPages
	default:
		return 0, false
	}
	return target, target != page
}
