package httpserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 123000, time.UTC),
		ID:        uuid.New(),
	}

	encoded := EncodeCursor(c)
	decoded, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor() error: %v", err)
	}

	if !decoded.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", decoded.CreatedAt, c.CreatedAt)
	}
	if decoded.ID != c.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, c.ID)
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	for _, s := range []string{"", "not-base64!!!", "bm9jb2xvbg", "MTIzNDU2"} {
		if _, err := DecodeCursor(s); err == nil {
			t.Errorf("DecodeCursor(%q) = nil error, want error", s)
		}
	}
}

func TestParseCursorParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantErr   bool
	}{
		{name: "defaults", query: "", wantLimit: DefaultPageSize},
		{name: "explicit limit", query: "?limit=10", wantLimit: 10},
		{name: "limit capped", query: "?limit=5000", wantLimit: MaxPageSize},
		{name: "invalid limit", query: "?limit=zero", wantErr: true},
		{name: "negative limit", query: "?limit=-1", wantErr: true},
		{name: "bad cursor", query: "?after=garbage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/incidents"+tt.query, nil)
			p, err := ParseCursorParams(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
		})
	}
}

func TestNewCursorPage(t *testing.T) {
	type row struct {
		At time.Time
		ID uuid.UUID
	}
	now := time.Now().UTC()
	rows := []row{
		{At: now, ID: uuid.New()},
		{At: now.Add(-time.Minute), ID: uuid.New()},
		{At: now.Add(-2 * time.Minute), ID: uuid.New()},
	}

	// Fetched limit+1 rows: page should trim and expose a cursor.
	page := NewCursorPage(rows, 2, func(r row) Cursor {
		return Cursor{CreatedAt: r.At, ID: r.ID}
	})
	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(page.Items))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
	if page.NextCursor == nil {
		t.Fatal("NextCursor = nil, want set")
	}

	c, err := DecodeCursor(*page.NextCursor)
	if err != nil {
		t.Fatalf("decoding next cursor: %v", err)
	}
	if c.ID != rows[1].ID {
		t.Errorf("cursor points at %v, want %v", c.ID, rows[1].ID)
	}

	// Exact fit: no more pages.
	page = NewCursorPage(rows[:2], 2, func(r row) Cursor {
		return Cursor{CreatedAt: r.At, ID: r.ID}
	})
	if page.HasMore {
		t.Error("HasMore = true, want false")
	}
	if page.NextCursor != nil {
		t.Error("NextCursor set, want nil")
	}
}

func TestParseOffsetParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/memberships?page=3&page_size=10", nil)
	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Offset != 20 {
		t.Errorf("Offset = %d, want 20", p.Offset)
	}

	r = httptest.NewRequest("GET", "/memberships?page=0", nil)
	if _, err := ParseOffsetParams(r); err == nil {
		t.Error("expected error for page=0")
	}
}
