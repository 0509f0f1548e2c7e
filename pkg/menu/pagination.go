package menu

import (
	"context"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// MaxJumpOptions caps the page-jump selector at the platform option limit.
const MaxJumpOptions = 25

// PaginationSession renders a fetched item collection page by page. Each
// viewer has an independent page cursor; built pages are cached by index and
// shared between viewers until the next wholesale invalidation.
type PaginationSession struct {
	*baseSession

	// guarded by baseSession.mu
	items   []interface{}
	fetched bool
	pages   map[int]*Payload
}

var _ Session = (*PaginationSession)(nil)

func newPaginationSession(id string, def *Definition, cfg Config, params Params, opts SessionOptions, creatorID string, messenger Messenger, stats Stats, log *logger.Logger) (*PaginationSession, error) {
	base, err := newBaseSession(id, def, cfg, params, opts, creatorID, messenger, stats, log)
	if err != nil {
		return nil, err
	}
	return &PaginationSession{
		baseSession: base,
		pages:       make(map[int]*Payload),
	}, nil
}

// SetData replaces session data and invalidates the whole page cache.
func (s *PaginationSession) SetData(data interface{}) {
	s.setData(data)
	s.invalidate()
}

// PageCount is max(1, ceil(itemCount/perPage)): page zero always exists, even
// for an empty collection.
func (s *PaginationSession) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pageCount(len(s.items), s.def.PerPage)
}

// ItemCount returns the size of the fetched collection.
func (s *PaginationSession) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Item returns the item at a global index.
func (s *PaginationSession) Item(i int) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.items) {
		return nil, false
	}
	return s.items[i], true
}

// CurrentPage returns a viewer's page cursor.
func (s *PaginationSession) CurrentPage(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if us, ok := s.users[userID]; ok {
		return us.CurrentPage
	}
	return 0
}

// Render fetches on first use and builds page zero for the creator.
func (s *PaginationSession) Render(ctx context.Context) (*Payload, error) {
	return s.RenderForUser(ctx, s.creatorID)
}

// RenderForUser builds or returns the cached page at the viewer's cursor.
func (s *PaginationSession) RenderForUser(ctx context.Context, userID string) (*Payload, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, err
	}
	return s.page(ctx, s.CurrentPage(userID))
}

// GoToPage validates the target page, moves the viewer's cursor and returns
// the page. Out-of-range targets fail with ErrInvalidPage and leave the
// cursor unchanged.
func (s *PaginationSession) GoToPage(ctx context.Context, userID string, n int) (*Payload, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, err
	}

	count := s.PageCount()
	if n < 0 || n >= count {
		return nil, errors.Wrapf(errors.ErrInvalidPage, "page %d out of range [0,%d)", n, count)
	}

	s.mu.Lock()
	if us, ok := s.users[userID]; ok {
		us.CurrentPage = n
	}
	s.mu.Unlock()

	return s.page(ctx, n)
}

// NextPage advances the viewer's cursor. At the last page it is a benign
// no-op: nil payload, moved=false, no error.
func (s *PaginationSession) NextPage(ctx context.Context, userID string) (*Payload, bool, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, false, err
	}
	current := s.CurrentPage(userID)
	if current >= s.PageCount()-1 {
		return nil, false, nil
	}
	payload, err := s.GoToPage(ctx, userID, current+1)
	return payload, err == nil, err
}

// PreviousPage moves the viewer's cursor back, a no-op at page zero.
func (s *PaginationSession) PreviousPage(ctx context.Context, userID string) (*Payload, bool, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, false, err
	}
	current := s.CurrentPage(userID)
	if current <= 0 {
		return nil, false, nil
	}
	payload, err := s.GoToPage(ctx, userID, current-1)
	return payload, err == nil, err
}

// FirstPage moves the viewer to page zero.
func (s *PaginationSession) FirstPage(ctx context.Context, userID string) (*Payload, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, err
	}
	return s.GoToPage(ctx, userID, 0)
}

// LastPage moves the viewer to the final page.
func (s *PaginationSession) LastPage(ctx context.Context, userID string) (*Payload, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, err
	}
	return s.GoToPage(ctx, userID, s.PageCount()-1)
}

// Refetch re-runs Fetch when refreshItems is set, recomputes the page count,
// invalidates the whole page cache, clamps every viewer's cursor into the new
// range, optionally rebuilds all pages eagerly, then rebroadcasts. A failing
// fetch leaves cache and cursors intact.
func (s *PaginationSession) Refetch(ctx context.Context, refreshItems bool) error {
	if refreshItems {
		items, err := s.def.Fetch(ctx, s.params)
		if err != nil {
			return errors.Wrapf(err, "menu %q: fetch failed", s.def.Name)
		}
		s.mu.Lock()
		s.items = items
		s.fetched = true
		s.mu.Unlock()
	}

	s.invalidate()

	count := s.PageCount()
	s.mu.Lock()
	for _, us := range s.users {
		if us.CurrentPage >= count {
			us.CurrentPage = count - 1
		}
		if us.CurrentPage < 0 {
			us.CurrentPage = 0
		}
	}
	s.mu.Unlock()

	if s.cfg.PreloadAll {
		for n := 0; n < count; n++ {
			if _, err := s.page(ctx, n); err != nil {
				return err
			}
		}
	}

	return s.Broadcast(ctx)
}

// Broadcast pushes each viewer's current page to them.
func (s *PaginationSession) Broadcast(ctx context.Context) error {
	return s.broadcast(ctx, s.RenderForUser)
}

// Finalize applies the end-of-session message policy.
func (s *PaginationSession) Finalize(ctx context.Context) error {
	return s.finalize(ctx, s.RenderForUser)
}

func (s *PaginationSession) ensureFetched(ctx context.Context) error {
	s.mu.RLock()
	fetched := s.fetched
	s.mu.RUnlock()
	if fetched {
		return nil
	}

	items, err := s.def.Fetch(ctx, s.params)
	if err != nil {
		return errors.Wrapf(err, "menu %q: fetch failed", s.def.Name)
	}

	s.mu.Lock()
	s.items = items
	s.fetched = true
	s.mu.Unlock()

	if s.cfg.PreloadAll {
		count := s.PageCount()
		for n := 0; n < count; n++ {
			if _, err := s.page(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *PaginationSession) invalidate() {
	s.mu.Lock()
	s.pages = make(map[int]*Payload)
	s.mu.Unlock()
}

// page returns the cached payload for a page index, building it on demand.
func (s *PaginationSession) page(ctx context.Context, n int) (*Payload, error) {
	s.mu.RLock()
	cached, ok := s.pages[n]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	started := time.Now()
	payload, err := s.buildPage(ctx, n)
	if err != nil {
		return nil, err
	}
	s.stats.PageBuilt(s.def.Name, time.Since(started))

	s.mu.Lock()
	s.pages[n] = payload
	s.mu.Unlock()
	return payload, nil
}

// buildPage concatenates the title fragment, one rendered fragment per item in
// the page slice, and the navigation controls when there is more than one
// page. Raw action identifiers in item fragments are rewritten with the item's
// global index appended for item-scoped actions.
func (s *PaginationSession) buildPage(ctx context.Context, n int) (*Payload, error) {
	s.mu.RLock()
	items := s.items
	s.mu.RUnlock()

	perPage := s.def.PerPage
	count := pageCount(len(items), perPage)
	rc := s.renderContext(n)

	var fragments []Fragment

	if s.def.RenderTitle != nil {
		title, err := s.def.RenderTitle(ctx, rc)
		if err != nil {
			return nil, errors.Wrapf(err, "menu %q: RenderTitle failed", s.def.Name)
		}
		if title != nil {
			s.rewriteFragment(title, -1)
			fragments = append(fragments, *title)
		}
	}

	start := n * perPage
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	for i := start; i < end; i++ {
		frag, err := s.def.RenderItem(ctx, rc, items[i], i, i-start)
		if err != nil {
			return nil, errors.Wrapf(err, "menu %q: RenderItem failed for item %d", s.def.Name, i)
		}
		if frag != nil {
			s.rewriteFragment(frag, i)
			fragments = append(fragments, *frag)
		}
	}

	if count > 1 {
		fragments = append(fragments, s.navigationFragment(n, count))
	}

	return &Payload{Color: s.color, Fragments: fragments}, nil
}

// navigationFragment builds the paging control row plus the page-jump
// selector. Boundary buttons are disabled on their boundary pages.
func (s *PaginationSession) navigationFragment(current, count int) Fragment {
	nav := s.cfg.Navigation

	row := NewRow(
		s.navButton(nav.First, NavFirst, current == 0),
		s.navButton(nav.Previous, NavPrevious, current == 0),
		Component{
			Type:     ComponentButton,
			Label:    humanize.Comma(int64(current+1)) + " / " + humanize.Comma(int64(count)),
			CustomID: EncodeNavigation(s.cfg.ActionPrefix, s.id, NavIndicator),
			Style:    StyleSecondary,
			Disabled: true,
		},
		s.navButton(nav.Next, NavNext, current == count-1),
		s.navButton(nav.Last, NavLast, current == count-1),
	)

	winStart, winEnd := jumpWindow(current, count, MaxJumpOptions)
	options := make([]SelectOption, 0, winEnd-winStart)
	for p := winStart; p < winEnd; p++ {
		options = append(options, SelectOption{
			Label:   "Page " + humanize.Comma(int64(p+1)),
			Value:   strconv.Itoa(p),
			Default: p == current,
		})
	}
	jump := NewSelect(EncodeNavigation(s.cfg.ActionPrefix, s.id, NavGoto), "Jump to page", options...)

	return Fragment{Components: [][]Component{row, NewRow(jump)}}
}

func (s *PaginationSession) navButton(cfg ButtonConfig, name string, disabled bool) Component {
	return Component{
		Type:     ComponentButton,
		Label:    cfg.Label,
		Emoji:    cfg.Emoji,
		Style:    cfg.Style,
		CustomID: EncodeNavigation(s.cfg.ActionPrefix, s.id, name),
		Disabled: disabled,
	}
}

func pageCount(itemCount, perPage int) int {
	if itemCount <= 0 {
		return 1
	}
	return (itemCount + perPage - 1) / perPage
}

// jumpWindow centers the selector window on the current page and clamps it to
// the global page range. When pageCount >= max the window always holds max
// options; the start is pulled back if clamping at the end would shorten it.
func jumpWindow(current, count, max int) (start, end int) {
	if count <= max {
		return 0, count
	}
	start = current - max/2
	if start < 0 {
		start = 0
	}
	end = start + max
	if end > count {
		end = count
		start = end - max
	}
	return start, end
}
