package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/adminraster-go/internal/admin"
)

func region() *admin.Region {
	a0, sov := 3, 3
	return &admin.Region{
		ID:           7,
		Name:         "  saint-pierre et miquelon ",
		Admin0:       &a0,
		Sov:          &sov,
		FeatureClass: "Admin-1 minor island",
	}
}

func TestProcessRegion(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		wantName     string
		wantDisputed bool
	}{
		{
			name:     "nil keeps region",
			code:     `function process_region(r) return nil end`,
			wantName: "  saint-pierre et miquelon ",
		},
		{
			name: "helpers rewrite name",
			code: `function process_region(r)
				r.name = adminraster.title(adminraster.trim(r.name))
				return r
			end`,
			wantName: "Saint-pierre Et Miquelon",
		},
		{
			name: "mark disputed by class",
			code: `function process_region(r)
				if adminraster.contains(r.feature_class, "minor island") and r.admin0 == 3 then
					return { disputed = true }
				end
			end`,
			wantName:     "  saint-pierre et miquelon ",
			wantDisputed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRuntime()
			defer rt.Close()

			if err := rt.LoadString(tt.code); err != nil {
				t.Fatalf("LoadString: %v", err)
			}
			r := region()
			if err := rt.ProcessRegion(r); err != nil {
				t.Fatalf("ProcessRegion: %v", err)
			}
			if r.Name != tt.wantName {
				t.Errorf("name = %q, want %q", r.Name, tt.wantName)
			}
			if r.Disputed != tt.wantDisputed {
				t.Errorf("disputed = %v, want %v", r.Disputed, tt.wantDisputed)
			}
			if r.ID != 7 {
				t.Errorf("id = %d, want 7", r.ID)
			}
		})
	}
}

func TestProcessRegionErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"wrong return type", `function process_region(r) return 42 end`},
		{"runtime error", `function process_region(r) error("bad region") end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRuntime()
			defer rt.Close()
			if err := rt.LoadString(tt.code); err != nil {
				t.Fatal(err)
			}
			if err := rt.ProcessRegion(region()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadRequiresCallback(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	if err := rt.LoadString(`x = 1`); err == nil {
		t.Error("expected error for script without process_region")
	}
	if err := rt.LoadString(`this is not lua`); err == nil {
		t.Error("expected syntax error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.lua")
	code := `function process_region(r) print("seen", r.id) return { name = "X" } end`
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		t.Fatal(err)
	}

	rt := NewRuntime()
	defer rt.Close()
	if err := rt.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	r := region()
	if err := rt.ProcessRegion(r); err != nil {
		t.Fatal(err)
	}
	if r.Name != "X" {
		t.Errorf("name = %q, want X", r.Name)
	}
}

var _ admin.Hook = (*Runtime)(nil)
