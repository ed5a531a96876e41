package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// openTestStore connects to ADMINRASTER_TEST_DSN or skips the test
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ADMINRASTER_TEST_DSN")
	if dsn == "" {
		t.Skip("ADMINRASTER_TEST_DSN not set")
	}
	s, err := Open(context.Background(), dsn, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func ptr(v int) *int { return &v }

func TestRegionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	regions := &admin.Regions{
		Sov:    []admin.Named{{ID: 0, Name: "Canada"}, {ID: 1, Name: "France"}},
		Admin0: []admin.Named{{ID: 0, Name: "Canada"}, {ID: 1, Name: "France"}},
		Admin1: []admin.Region{
			{ID: 0, Name: "Ontario", Admin0: ptr(0), Sov: ptr(0)},
			{ID: 1, Name: "Martinique", Sov: ptr(1)},
			{ID: 2, Name: "Contested", Disputed: true, Admin0: ptr(1), Sov: ptr(1)},
		},
	}
	if err := s.ReplaceRegions(ctx, regions); err != nil {
		t.Fatalf("ReplaceRegions: %v", err)
	}

	tests := []struct {
		id    int
		found bool
		want  admin.Record
	}{
		{0, true, admin.Record{ID: 0, Admin1: "Ontario", Admin0: "Canada", Sov: "Canada"}},
		{1, true, admin.Record{ID: 1, Admin1: "Martinique", Admin0: admin.NotAvailable, Sov: "France"}},
		{2, true, admin.Record{ID: 2, Admin1: "Contested", Admin0: "France", Sov: "France", Disputed: true}},
		{99, false, admin.Record{}},
	}
	for _, tt := range tests {
		got, found, err := s.Region(ctx, tt.id)
		if err != nil {
			t.Fatalf("Region(%d): %v", tt.id, err)
		}
		if found != tt.found || got != tt.want {
			t.Errorf("Region(%d) = %+v, %v, want %+v, %v", tt.id, got, found, tt.want, tt.found)
		}
	}

	list, err := s.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("Records() returned %d rows, want 3", len(list))
	}
	for i, rec := range list {
		if rec != tests[i].want {
			t.Errorf("Records()[%d] = %+v, want %+v", i, rec, tests[i].want)
		}
	}
}

func TestReplaceRegionsIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	good := &admin.Regions{
		Sov:    []admin.Named{{ID: 0, Name: "A"}},
		Admin0: []admin.Named{{ID: 0, Name: "A"}},
		Admin1: []admin.Region{{ID: 0, Name: "kept", Admin0: ptr(0), Sov: ptr(0)}},
	}
	if err := s.ReplaceRegions(ctx, good); err != nil {
		t.Fatal(err)
	}

	// admin1 references a missing admin0 row, so the batch must fail
	bad := &admin.Regions{
		Sov:    []admin.Named{{ID: 0, Name: "B"}},
		Admin0: []admin.Named{{ID: 0, Name: "B"}},
		Admin1: []admin.Region{{ID: 0, Name: "lost", Admin0: ptr(42), Sov: ptr(0)}},
	}
	if err := s.ReplaceRegions(ctx, bad); !errors.Is(err, ErrStore) {
		t.Fatalf("error = %v, want ErrStore", err)
	}

	rec, found, err := s.Region(ctx, 0)
	if err != nil || !found {
		t.Fatalf("Region(0) = %v, %v", found, err)
	}
	if rec.Admin1 != "kept" || rec.Sov != "A" {
		t.Errorf("previous batch not preserved: %+v", rec)
	}
}

func TestTiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tiles := []TileBlob{{Index: 0, PNG: []byte{1, 2, 3}}, {Index: tiling.TileCount - 1, PNG: []byte{4}}}
	if err := s.ReplaceTiles(ctx, tiles); err != nil {
		t.Fatalf("ReplaceTiles: %v", err)
	}

	got, err := s.Tile(ctx, tiling.TileCount-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("Tile = %v", got)
	}

	if _, err := s.Tile(ctx, 5); !errors.Is(err, ErrTileNotFound) || !errors.Is(err, ErrStore) {
		t.Errorf("missing tile error = %v", err)
	}

	n, err := s.TileCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("TileCount = %d, %v", n, err)
	}

	if err := s.ReplaceTiles(ctx, []TileBlob{{Index: tiling.TileCount}}); !errors.Is(err, tiling.ErrOutOfRange) {
		t.Errorf("out of range error = %v", err)
	}
}

func TestOpenInvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), "host=::invalid port=notaport", 1); !errors.Is(err, ErrStore) {
		t.Errorf("error = %v, want ErrStore", err)
	}
}
