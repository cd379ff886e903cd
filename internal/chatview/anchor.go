package chatview

// LoadZone is the fraction of the scrollable range, measured from the top,
// in which scrolling asks for older messages.
const LoadZone = 0.2

// ScrollMetrics is the scroll geometry reported by the renderer.
type ScrollMetrics struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// InLoadZone reports whether the viewport is within LoadZone of the top. A
// container that cannot scroll is never in the zone.
func (m ScrollMetrics) InLoadZone() bool {
	scrollable := m.ScrollHeight - m.ClientHeight
	if scrollable <= 0 {
		return false
	}
	return m.ScrollTop/scrollable <= LoadZone
}

// Anchor is the scroll position captured before older messages are prepended.
type Anchor struct {
	PrevScrollHeight float64 `json:"prev_scroll_height"`
	PrevScrollTop    float64 `json:"prev_scroll_top"`
}

// AnchorOf captures m.
func AnchorOf(m ScrollMetrics) Anchor {
	return Anchor{PrevScrollHeight: m.ScrollHeight, PrevScrollTop: m.ScrollTop}
}

// Restore returns the scrollTop that keeps the previously visible message in
// place once the content has grown to newScrollHeight.
func (a Anchor) Restore(newScrollHeight float64) float64 {
	return a.PrevScrollTop + (newScrollHeight - a.PrevScrollHeight)
}
