// Package layout is the navigation registry: pages addressable by local id
// (plid), by portable uuid within a company, and by friendly URL within a group.
package layout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/solatis/segmentkeeper/internal/types"
	"golang.org/x/text/language"
)

// Layout is a page in a group's public or private navigation tree.
type Layout struct {
	Plid          int64
	UUID          string
	GroupID       int64
	CompanyID     int64
	PrivateLayout bool
	FriendlyURL   string
	Titles        map[string]string // BCP 47 tag -> title
}

// DefaultLocale is the fallback when a title has no translation for the
// requested locale.
var DefaultLocale = language.AmericanEnglish

// Title returns the title best matching tag, or "" when the page has none.
func (l *Layout) Title(tag language.Tag) string {
	return i18n.FromMap(l.Titles, DefaultLocale).In(tag)
}

// Registry resolves pages. Lookups report absence as (nil, nil); errors are
// reserved for failures of the registry itself.
type Registry interface {
	FetchLayout(ctx context.Context, plid int64) (*Layout, error)
	FetchLayoutByUUIDAndCompanyID(ctx context.Context, uuid string, companyID int64) (*Layout, error)
	FetchLayoutByFriendlyURL(ctx context.Context, groupID int64, private bool, friendlyURL string) (*Layout, error)
	GroupFriendlyURL(ctx context.Context, groupID int64, private bool) (string, error)
}

// Store implements Registry over the layouts table.
type Store struct {
	q *db.Queries
}

// NewStore creates a layout store.
func NewStore(q *db.Queries) *Store {
	return &Store{q: q}
}

type layoutRow struct {
	Plid          int64  `db:"plid"`
	UUID          string `db:"uuid"`
	GroupID       int64  `db:"group_id"`
	CompanyID     int64  `db:"company_id"`
	PrivateLayout int    `db:"private_layout"`
	FriendlyURL   string `db:"friendly_url"`
	Titles        string `db:"titles"`
}

func (r layoutRow) toLayout() (*Layout, error) {
	l := &Layout{
		Plid:          r.Plid,
		UUID:          r.UUID,
		GroupID:       r.GroupID,
		CompanyID:     r.CompanyID,
		PrivateLayout: r.PrivateLayout != 0,
		FriendlyURL:   r.FriendlyURL,
	}
	if r.Titles != "" {
		if err := json.Unmarshal([]byte(r.Titles), &l.Titles); err != nil {
			return nil, fmt.Errorf("layout %d has malformed titles: %w", r.Plid, err)
		}
	}
	return l, nil
}

func (s *Store) fetch(ctx context.Context, op, name string, args ...interface{}) (*Layout, error) {
	var row layoutRow
	err := s.q.Get(ctx, name, &row, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.Unavailable(op, err)
	}
	return row.toLayout()
}

// FetchLayout returns the page with local id plid.
func (s *Store) FetchLayout(ctx context.Context, plid int64) (*Layout, error) {
	return s.fetch(ctx, "fetch layout", "get-layout", plid)
}

// FetchLayoutByUUIDAndCompanyID returns the page with portable id uuid in a
// company. Public pages win when both trees carry the uuid.
func (s *Store) FetchLayoutByUUIDAndCompanyID(ctx context.Context, uuid string, companyID int64) (*Layout, error) {
	return s.fetch(ctx, "fetch layout by uuid", "get-layout-by-uuid-and-company", uuid, companyID)
}

// FetchLayoutByFriendlyURL returns the page at friendlyURL in one tree of a group.
func (s *Store) FetchLayoutByFriendlyURL(ctx context.Context, groupID int64, private bool, friendlyURL string) (*Layout, error) {
	return s.fetch(ctx, "fetch layout by friendly url", "get-layout-by-friendly-url", groupID, boolToInt(private), NormalizeFriendlyURL(friendlyURL))
}

// GroupFriendlyURL returns the URL prefix under which a group's pages live.
func (s *Store) GroupFriendlyURL(_ context.Context, groupID int64, private bool) (string, error) {
	if private {
		return fmt.Sprintf("/group/%d", groupID), nil
	}
	return fmt.Sprintf("/web/%d", groupID), nil
}

// AddLayout inserts a page and returns it with its assigned plid.
// A missing UUID is generated.
func (s *Store) AddLayout(ctx context.Context, l Layout) (*Layout, error) {
	if l.UUID == "" {
		l.UUID = types.NewUUID()
	}
	l.FriendlyURL = NormalizeFriendlyURL(l.FriendlyURL)

	titles := l.Titles
	if titles == nil {
		titles = map[string]string{}
	}
	titlesJSON, err := json.Marshal(titles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode titles: %w", err)
	}

	if err := s.q.Get(ctx, "add-layout", &l.Plid,
		l.UUID, l.GroupID, l.CompanyID, boolToInt(l.PrivateLayout), l.FriendlyURL, string(titlesJSON),
	); err != nil {
		return nil, fmt.Errorf("failed to add layout: %w", err)
	}
	return &l, nil
}

// NormalizeFriendlyURL trims whitespace and ensures a single leading slash.
func NormalizeFriendlyURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	return "/" + strings.TrimLeft(u, "/")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
