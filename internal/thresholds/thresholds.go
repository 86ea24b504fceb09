// Package thresholds manages the versioned drift-threshold document: global
// values overridden field-by-field per query type, with hard bounds enforced
// on every mutation. Writers fail on an invalid document; readers fall back
// to built-in defaults so the scoring pipeline never stalls on bad config.
package thresholds

import (
	"errors"
	"fmt"
	"os"

	"github.com/ergohq/ergo/internal/classify"
	"github.com/ergohq/ergo/internal/storage"
)

// Hard bounds. Mutations outside these ranges are configuration errors.
const (
	DensityMinFloor   = 0.40
	DensityMinCeiling = 0.80
	FillerMaxCeiling  = 2
)

// Built-in defaults, also used to seed the document on first write.
const (
	DefaultDensityMin      = 0.60
	DefaultFillerMax       = 0
	defaultCodeDensityMin  = 0.50
	defaultClaimDensityMin = 0.55
)

// Scope for Set: the reserved word "global" or any known query type.
const ScopeGlobal = "global"

// Settable fields.
const (
	FieldDensityMin = "density_min"
	FieldFillerMax  = "filler_max"
)

// ErrOutOfBounds is the configuration error for a threshold mutation that
// violates the hard bounds. The previous on-disk document is left intact.
var ErrOutOfBounds = errors.New("threshold value out of bounds")

// ErrUnknownField is returned for a Set against a field that does not exist.
var ErrUnknownField = errors.New("unknown threshold field")

// ErrUnknownScope is returned for a Set against a scope that is neither
// "global" nor a query type the classifier can produce. An override for a
// made-up query type would never match anything.
var ErrUnknownScope = errors.New("unknown threshold scope")

// Threshold is the effective set of limits for one query type.
type Threshold struct {
	DensityMin float64 `json:"density_min"`
	FillerMax  int     `json:"filler_max"`
}

// Override is a partial per-query-type threshold; nil fields inherit global.
type Override struct {
	DensityMin *float64 `json:"density_min,omitempty"`
	FillerMax  *int     `json:"filler_max,omitempty"`
}

// Document is the on-disk thresholds file.
type Document struct {
	Version   int                 `json:"version"`
	Global    Threshold           `json:"global"`
	Overrides map[string]Override `json:"overrides,omitempty"`
}

// Store reads and mutates the thresholds document at one path.
type Store struct {
	Path string
}

// NewStore returns a store backed by the document at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Defaults returns the built-in document used before any calibration.
func Defaults() Document {
	code := defaultCodeDensityMin
	claim := defaultClaimDensityMin
	return Document{
		Version: 1,
		Global:  Threshold{DensityMin: DefaultDensityMin, FillerMax: DefaultFillerMax},
		Overrides: map[string]Override{
			"code":  {DensityMin: &code},
			"claim": {DensityMin: &claim},
		},
	}
}

// Load reads and validates the document. A missing file yields the defaults;
// an invalid or out-of-bounds file is a configuration error (fatal for
// writers — readers should use Effective, which falls back).
func (s *Store) Load() (Document, error) {
	var doc Document
	if err := storage.ReadJSON(s.Path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Document{}, fmt.Errorf("load thresholds: %w", err)
	}
	if err := validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Effective resolves the thresholds for a query type: global values with any
// matching override applied field by field. Never fails: an unreadable or
// invalid document degrades to the built-in defaults.
func (s *Store) Effective(queryType string) Threshold {
	doc, err := s.Load()
	if err != nil {
		doc = Defaults()
	}
	eff := doc.Global
	if ov, ok := doc.Overrides[queryType]; ok {
		if ov.DensityMin != nil {
			eff.DensityMin = *ov.DensityMin
		}
		if ov.FillerMax != nil {
			eff.FillerMax = *ov.FillerMax
		}
	}
	return eff
}

// Set mutates one field in one scope under the document lock, enforcing
// bounds before anything touches disk and bumping the version on success.
func (s *Store) Set(scope, field string, value float64) (Document, error) {
	var doc Document
	err := storage.WithLock(s.Path, func() error {
		loaded, err := s.Load()
		if err != nil {
			return err
		}
		doc = loaded
		if err := applySet(&doc, scope, field, value); err != nil {
			return err
		}
		doc.Version++
		return storage.WriteJSONUnlocked(s.Path, doc)
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func applySet(doc *Document, scope, field string, value float64) error {
	if scope != ScopeGlobal && !classify.Known(scope) {
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if err := checkBounds(field, value); err != nil {
		return err
	}
	if scope == ScopeGlobal {
		switch field {
		case FieldDensityMin:
			doc.Global.DensityMin = value
		case FieldFillerMax:
			doc.Global.FillerMax = int(value)
		}
		return nil
	}
	if doc.Overrides == nil {
		doc.Overrides = map[string]Override{}
	}
	ov := doc.Overrides[scope]
	switch field {
	case FieldDensityMin:
		v := value
		ov.DensityMin = &v
	case FieldFillerMax:
		n := int(value)
		ov.FillerMax = &n
	}
	doc.Overrides[scope] = ov
	return nil
}

func checkBounds(field string, value float64) error {
	switch field {
	case FieldDensityMin:
		if value < DensityMinFloor || value > DensityMinCeiling {
			return fmt.Errorf("%w: density_min %.2f not in [%.2f, %.2f]",
				ErrOutOfBounds, value, DensityMinFloor, DensityMinCeiling)
		}
	case FieldFillerMax:
		n := int(value)
		if float64(n) != value || n < 0 || n > FillerMaxCeiling {
			return fmt.Errorf("%w: filler_max %v not an integer in [0, %d]",
				ErrOutOfBounds, value, FillerMaxCeiling)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func validate(doc Document) error {
	if err := checkBounds(FieldDensityMin, doc.Global.DensityMin); err != nil {
		return err
	}
	if err := checkBounds(FieldFillerMax, float64(doc.Global.FillerMax)); err != nil {
		return err
	}
	for qt, ov := range doc.Overrides {
		if ov.DensityMin != nil {
			if err := checkBounds(FieldDensityMin, *ov.DensityMin); err != nil {
				return fmt.Errorf("override %s: %w", qt, err)
			}
		}
		if ov.FillerMax != nil {
			if err := checkBounds(FieldFillerMax, float64(*ov.FillerMax)); err != nil {
				return fmt.Errorf("override %s: %w", qt, err)
			}
		}
	}
	return nil
}
