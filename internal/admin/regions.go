package admin

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/shapefile"
	"github.com/wegman-software/adminraster-go/internal/style"
)

var (
	// ErrUnmatchedRegion is returned when a subdivision names neither a
	// known country nor a known sovereign state
	ErrUnmatchedRegion = errors.New("region matches no country or sovereign state")
	// ErrDuplicateCode is returned when two countries share a code
	ErrDuplicateCode = errors.New("duplicate country code")
	// ErrEmptyTable is returned when an attribute table has no records
	ErrEmptyTable = errors.New("attribute table has no records")
)

// Named is an id/name pair, used for the admin0 and sov tables
type Named struct {
	ID   int
	Name string
}

// Region is one admin1 record. ID equals the feature id painted into the
// raster. Admin0 is nil when the subdivision only matched a sovereign state.
type Region struct {
	ID           int
	Name         string
	Disputed     bool
	Admin0       *int
	Sov          *int
	FeatureClass string
}

// Regions holds every record written for one dataset
type Regions struct {
	Sov    []Named
	Admin0 []Named
	Admin1 []Region
}

// Hook may rewrite a region after it has been derived
type Hook interface {
	ProcessRegion(r *Region) error
}

type country struct {
	id      int
	name    string
	code    string
	sovName string
	sovCode string
	typ     string
	note    string
}

// Build derives the region records from the admin0 and admin1 attribute
// tables. Row i of each table receives id i. hook may be nil.
func Build(admin0Rows, admin1Rows []shapefile.Row, cfg *style.Config, hook Hook) (*Regions, error) {
	if len(admin0Rows) == 0 {
		return nil, fmt.Errorf("admin0: %w", ErrEmptyTable)
	}
	if len(admin1Rows) == 0 {
		return nil, fmt.Errorf("admin1: %w", ErrEmptyTable)
	}

	f0 := cfg.Admin0
	countries := make([]country, len(admin0Rows))
	byCode := make(map[string]int, len(admin0Rows))
	bySov := make(map[string]int, len(admin0Rows))

	for i, row := range admin0Rows {
		c := country{
			id:      i,
			name:    row[f0.Name],
			code:    row[f0.Code],
			sovName: row[f0.SovName],
			sovCode: row[f0.SovCode],
			typ:     row[f0.Type],
			note:    row[f0.Note],
		}
		if prev, ok := byCode[c.code]; ok {
			return nil, fmt.Errorf("admin0 records %d and %d share code %q: %w", prev, i, c.code, ErrDuplicateCode)
		}
		byCode[c.code] = i
		if _, ok := bySov[c.sovCode]; !ok {
			bySov[c.sovCode] = i
		}
		countries[i] = c
	}

	out := &Regions{
		Sov:    make([]Named, len(countries)),
		Admin0: make([]Named, len(countries)),
		Admin1: make([]Region, 0, len(admin1Rows)),
	}
	for i, c := range countries {
		out.Sov[i] = Named{ID: c.id, Name: c.sovName}
		out.Admin0[i] = Named{ID: c.id, Name: c.name}
	}

	f1 := cfg.Admin1
	sovOnly := 0
	for i, row := range admin1Rows {
		r := Region{
			ID:           i,
			Name:         row[f1.Name],
			FeatureClass: row[f1.FeatureClass],
		}
		if cfg.IsFallbackClass(r.FeatureClass) {
			r.Name = row[f1.Admin]
		}

		if idx, ok := byCode[row[f1.Admin0Code]]; ok {
			c := countries[idx]
			r.Admin0 = intPtr(c.id)
			r.Sov = intPtr(c.id)
			r.Disputed = cfg.IsDisputed(c.typ, c.note)
		} else if idx, ok := bySov[row[f1.SovCode]]; ok {
			r.Sov = intPtr(countries[idx].id)
			sovOnly++
		} else {
			return nil, fmt.Errorf("admin1 record %d (%q, %s/%s): %w",
				i, r.Name, row[f1.Admin0Code], row[f1.SovCode], ErrUnmatchedRegion)
		}

		if hook != nil {
			if err := hook.ProcessRegion(&r); err != nil {
				return nil, fmt.Errorf("region hook failed for record %d: %w", i, err)
			}
			r.ID = i
		}
		out.Admin1 = append(out.Admin1, r)
	}

	logger.Get().Info("Built region records",
		zap.Int("sov", len(out.Sov)),
		zap.Int("admin0", len(out.Admin0)),
		zap.Int("admin1", len(out.Admin1)),
		zap.Int("sov_only", sovOnly))

	return out, nil
}

func intPtr(v int) *int {
	return &v
}

// NotAvailable is reported for names that have no record
const NotAvailable = "N/A"

// Record is the resolved view of one admin1 region as returned to lookups
type Record struct {
	ID       int
	Admin1   string
	Admin0   string
	Sov      string
	Disputed bool
}

// Records resolves every admin1 region against the admin0 and sov tables,
// the same view the store returns for lookups
func (r *Regions) Records() []Record {
	name := func(list []Named, id *int) string {
		if id == nil || *id < 0 || *id >= len(list) {
			return NotAvailable
		}
		return list[*id].Name
	}

	out := make([]Record, len(r.Admin1))
	for i, reg := range r.Admin1 {
		out[i] = Record{
			ID:       reg.ID,
			Admin1:   reg.Name,
			Admin0:   name(r.Admin0, reg.Admin0),
			Sov:      name(r.Sov, reg.Sov),
			Disputed: reg.Disputed,
		}
	}
	return out
}
