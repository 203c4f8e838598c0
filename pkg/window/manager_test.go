package window

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/explorer/pkg/models"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func file(name, content string) models.FileRecord {
	return models.FileRecord{Name: name, Type: models.TypeFor(name)}.WithContent(content)
}

func TestOpenIsSingletonPerPath(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))

	first, created := m.Open("/", file("readme.md", "hello"))
	require.True(t, created)
	other, _ := m.Open("/", file("other.md", ""))

	again, created := m.Open("/", file("readme.md", "ignored"))
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, m.Len())
	assert.Greater(t, again.Z, other.Z, "reopen should bring the session to the top")
	assert.Equal(t, "hello", again.File.Text(), "reopen must not replace local content")

	// Same name under a different path is a different file.
	_, created = m.Open("/docs/", file("readme.md", ""))
	assert.True(t, created)
	assert.Equal(t, 3, m.Len())
}

func TestZOrderMonotonic(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	var ids []string
	for i := 0; i < 5; i++ {
		s, _ := m.Open("/", file(fmt.Sprintf("f%d.txt", i), ""))
		ids = append(ids, s.ID)
	}

	focus := []string{ids[2], ids[0], ids[4], ids[2], ids[1]}
	for _, id := range focus {
		_, err := m.BringToFront(id)
		require.NoError(t, err)
		top, ok := m.Top()
		require.True(t, ok)
		assert.Equal(t, id, top.ID)
	}

	// The relative order of the rest is preserved: ids[0] was focused
	// before ids[4], ids[4] before the second ids[2].
	z := map[string]int{}
	for _, s := range m.Sessions() {
		z[s.ID] = s.Z
	}
	assert.Less(t, z[ids[0]], z[ids[4]])
	assert.Less(t, z[ids[4]], z[ids[2]])
	assert.Less(t, z[ids[2]], z[ids[1]])
	assert.Less(t, z[ids[3]], z[ids[0]], "never-focused window stays below")

	stack := m.Stack()
	assert.Equal(t, ids[1], stack[len(stack)-1].ID)
}

func TestCascadeWraps(t *testing.T) {
	g := DefaultGeometry()
	m := NewManager(WithIDs(seqIDs()), WithViewport(Viewport{Width: 4000, Height: 4000}))

	var rects []Rect
	for i := 0; i < g.CascadeWrap+1; i++ {
		s, _ := m.Open("/", file(fmt.Sprintf("f%d", i), ""))
		rects = append(rects, s.Rect)
	}
	assert.Equal(t, Rect{X: 40, Y: 40, Width: 640, Height: 480}, rects[0])
	assert.Equal(t, 70, rects[1].X)
	assert.Equal(t, 70, rects[1].Y)
	assert.Equal(t, rects[0], rects[g.CascadeWrap], "cascade should restart after the wrap threshold")
}

func TestCascadeFollowsOpenWindows(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()), WithViewport(Viewport{Width: 4000, Height: 4000}))

	a, _ := m.Open("/", file("a", ""))
	b, _ := m.Open("/", file("b", ""))
	require.NoError(t, m.Close(a.ID))
	require.NoError(t, m.Close(b.ID))

	c, _ := m.Open("/", file("c", ""))
	assert.Equal(t, 40, c.Rect.X, "with nothing open the next window starts at the base")
	assert.Equal(t, 40, c.Rect.Y)

	_, err := m.Move(c.ID, 500, 300)
	require.NoError(t, err)
	d, _ := m.Open("/", file("d", ""))
	assert.Equal(t, 530, d.Rect.X, "a new window cascades from the previous one")
	assert.Equal(t, 330, d.Rect.Y)
}

func TestClampProperty(t *testing.T) {
	g := DefaultGeometry()
	viewports := []Viewport{{1280, 800}, {800, 600}, {g.MinWidth, g.MinHeight + g.YMinPad}, {1920, 1080}}
	positions := []int{-10000, -1, 0, 7, 100, 5000}
	sizes := []int{0, 50, 320, 700, 10000}

	for _, vp := range viewports {
		for _, x := range positions {
			for _, y := range positions {
				for _, w := range sizes {
					for _, h := range sizes {
						r := g.Clamp(Rect{X: x, Y: y, Width: w, Height: h}, vp)
						if r.Width < g.MinWidth || r.Height < g.MinHeight {
							t.Fatalf("below minimum: %+v in %+v", r, vp)
						}
						if r.X < 0 || r.X+r.Width > vp.Width {
							t.Fatalf("x out of bounds: %+v in %+v", r, vp)
						}
						if r.Y < g.YMinPad || r.Y+r.Height > vp.Height {
							t.Fatalf("y out of bounds: %+v in %+v", r, vp)
						}
					}
				}
			}
		}
	}
}

func TestClampTinyViewportKeepsMinimum(t *testing.T) {
	g := DefaultGeometry()
	r := g.Clamp(Rect{X: 50, Y: 50, Width: 10, Height: 10}, Viewport{Width: 100, Height: 100})
	assert.Equal(t, g.MinWidth, r.Width)
	assert.Equal(t, g.MinHeight, r.Height)
	assert.Equal(t, 0, r.X)
	assert.Equal(t, g.YMinPad, r.Y)
}

func TestMoveResizeClamp(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()), WithViewport(Viewport{Width: 1000, Height: 700}))
	s, _ := m.Open("/", file("a.txt", ""))

	moved, err := m.Move(s.ID, 5000, -300)
	require.NoError(t, err)
	assert.Equal(t, 1000-640, moved.Rect.X)
	assert.Equal(t, 8, moved.Rect.Y)

	resized, err := m.Resize(s.ID, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 320, resized.Rect.Width)
	assert.Equal(t, 200, resized.Rect.Height)

	_, err = m.Move("missing", 0, 0)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSetViewportReclamps(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	s, _ := m.Open("/", file("a.txt", ""))
	m.Move(s.ID, 600, 300)

	m.SetViewport(Viewport{Width: 700, Height: 500})
	got, _ := m.Get(s.ID)
	assert.LessOrEqual(t, got.Rect.X+got.Rect.Width, 700)
	assert.LessOrEqual(t, got.Rect.Y+got.Rect.Height, 500)
}

func TestUpdateContentAndDirty(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	s, _ := m.Open("/", file("readme.md", "hello"))
	assert.False(t, s.Dirty())

	s, err := m.UpdateContent(s.ID, "hello world")
	require.NoError(t, err)
	assert.True(t, s.Dirty())

	s, err = m.MarkSaved(s.ID, "hello world", models.FileRecord{LastModified: "2025-05-05", Size: "11 B"})
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	assert.Equal(t, "2025-05-05", s.File.LastModified)
	assert.Equal(t, "hello world", s.File.Text())

	// Edits made while a save was in flight stay dirty.
	m.UpdateContent(s.ID, "newer")
	s, _ = m.MarkSaved(s.ID, "hello world", models.FileRecord{LastModified: "2025-05-06"})
	assert.True(t, s.Dirty())
}

func TestSessionIsAFork(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	orig := file("a.txt", "x")
	s, _ := m.Open("/", orig)
	m.UpdateContent(s.ID, "y")
	assert.Equal(t, "x", orig.Text())
}

func TestCloseVariants(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	a, _ := m.Open("/", file("a.txt", ""))
	m.Open("/docs/", file("b.txt", ""))
	m.Open("/docs/sub/", file("c.txt", ""))
	m.Open("/docs2/", file("d.txt", ""))

	require.NoError(t, m.Close(a.ID))
	assert.ErrorIs(t, m.Close(a.ID), ErrNoSession)

	closed := m.CloseUnder("/docs/")
	assert.Len(t, closed, 2)
	assert.Equal(t, 1, m.Len())

	id, ok := m.CloseFile("/docs2/", "d.txt")
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, 0, m.Len())
}

func TestFind(t *testing.T) {
	m := NewManager(WithIDs(seqIDs()))
	s, _ := m.Open("docs", file("a.txt", ""))
	found, ok := m.Find("/docs/", "a.txt")
	require.True(t, ok)
	assert.Equal(t, s.ID, found.ID)
	assert.Equal(t, "/docs/a.txt", found.Key())
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := m.Open("/", file(fmt.Sprintf("f%d", i%4), ""))
			m.Move(s.ID, i*10, i*10)
			m.BringToFront(s.ID)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, m.Len())
}

func TestWaitReady(t *testing.T) {
	m := NewManager()
	err := m.WaitReady(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrHostNotReady)

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.MarkReady()
	}()
	require.NoError(t, m.WaitReady(context.Background(), time.Second))

	m.MarkReady() // idempotent
	require.NoError(t, m.WaitReady(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fresh := NewManager()
	assert.ErrorIs(t, fresh.WaitReady(ctx, 0), context.Canceled)
}
