package window

// Geometry holds the layout constants of the window manager.
type Geometry struct {
	DefaultWidth  int
	DefaultHeight int
	MinWidth      int
	MinHeight     int
	CascadeOffset int // pixel step between successive new windows
	CascadeWrap   int // windows per cascade run before restarting at the base
	BaseX, BaseY  int
	YMinPad       int // keeps the title bar below the top edge
}

// DefaultGeometry returns the stock layout.
func DefaultGeometry() Geometry {
	return Geometry{
		DefaultWidth:  640,
		DefaultHeight: 480,
		MinWidth:      320,
		MinHeight:     200,
		CascadeOffset: 30,
		CascadeWrap:   8,
		BaseX:         40,
		BaseY:         40,
		YMinPad:       8,
	}
}

// Viewport is the visible area windows are confined to.
type Viewport struct {
	Width, Height int
}

// DefaultViewport is used until the host reports its real size.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// Rect is a window's position and size.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Clamp fits r into the viewport: size is floored at the minimums and
// capped at the viewport, then x is kept within [0, vw-w] and y within
// [YMinPad, vh-h]. A viewport smaller than the minimum window cannot hold
// it entirely; the minimum size wins and the window is pinned top-left.
func (g Geometry) Clamp(r Rect, vp Viewport) Rect {
	r.Width = max(r.Width, g.MinWidth)
	r.Height = max(r.Height, g.MinHeight)
	if vp.Width >= g.MinWidth {
		r.Width = min(r.Width, vp.Width)
	}
	if avail := vp.Height - g.YMinPad; avail >= g.MinHeight {
		r.Height = min(r.Height, avail)
	}

	r.X = clamp(r.X, 0, max(0, vp.Width-r.Width))
	r.Y = clamp(r.Y, g.YMinPad, max(g.YMinPad, vp.Height-r.Height))
	return r
}

// cascade returns the position and cascade slot of a new window placed
// after prev, the most recently opened window still open. The first
// window, and the one after a full run of CascadeWrap, starts at the base.
func (g Geometry) cascade(prev *Session) (x, y, slot int) {
	if prev == nil || prev.slot+1 >= max(g.CascadeWrap, 1) {
		return g.BaseX, g.BaseY, 0
	}
	return prev.Rect.X + g.CascadeOffset, prev.Rect.Y + g.CascadeOffset, prev.slot + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
