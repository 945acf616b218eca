// Package catalog is the molecule store behind the chemistry service: a lookup table
// from identifiers in several notations to one molecule record. It does no chemistry;
// every conversion is a lookup of a precomputed record.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Identifier formats understood by Lookup and Molecule.Identifier.
const (
	FormatName     = "name"
	FormatInChI    = "inchi"
	FormatInChIKey = "inchikey"
	FormatSMILES   = "smiles"
	FormatFormula  = "formula"
)

// ErrNotFound is returned when no molecule matches.
var ErrNotFound = errors.New("catalog: molecule not found")

// ErrUnknownFormat is returned for an identifier format outside the list above.
var ErrUnknownFormat = errors.New("catalog: unknown identifier format")

// Molecule is one catalog record.
type Molecule struct {
	Name     string  `json:"name" yaml:"name"`
	InChI    string  `json:"inchi" yaml:"inchi"`
	InChIKey string  `json:"inchikey,omitempty" yaml:"inchikey"`
	SMILES   string  `json:"smiles,omitempty" yaml:"smiles"`
	Formula  string  `json:"formula,omitempty" yaml:"formula"`
	Mass     float64 `json:"mass,omitempty" yaml:"mass"`
}

// Identifier returns the molecule's identifier in format.
func (m *Molecule) Identifier(format string) (string, error) {
	switch NormalizeFormat(format) {
	case FormatName:
		return m.Name, nil
	case FormatInChI:
		return m.InChI, nil
	case FormatInChIKey:
		return m.InChIKey, nil
	case FormatSMILES:
		return m.SMILES, nil
	case FormatFormula:
		return m.Formula, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// NormalizeFormat lower-cases format so "InChI" and "inchi" are the same thing.
func NormalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// Catalog looks molecules up. Implementations must be safe for concurrent use.
type Catalog interface {
	// Lookup finds the molecule whose identifier in format equals identifier.
	Lookup(ctx context.Context, identifier, format string) (*Molecule, error)
	// ByInChI is Lookup(ctx, inchi, FormatInChI).
	ByInChI(ctx context.Context, inchi string) (*Molecule, error)
	Close() error
}

// Fixture is the built-in seed data used when no catalog file is configured.
func Fixture() []Molecule {
	return []Molecule{
		{Name: "methanol", InChI: "InChI=1S/CH4O/c1-2/h2H,1H3", InChIKey: "OKKJLVBELUTLKV-UHFFFAOYSA-N", SMILES: "CO", Formula: "CH4O", Mass: 32.042},
		{Name: "ethanol", InChI: "InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3", InChIKey: "LFQSCWFLJHTTHZ-UHFFFAOYSA-N", SMILES: "CCO", Formula: "C2H6O", Mass: 46.069},
		{Name: "water", InChI: "InChI=1S/H2O/h1H2", InChIKey: "XLYOFNOQVPJJNP-UHFFFAOYSA-N", SMILES: "O", Formula: "H2O", Mass: 18.015},
		{Name: "benzene", InChI: "InChI=1S/C6H6/c1-2-4-6-5-3-1/h1-6H", InChIKey: "UHOVQNZJYSORNB-UHFFFAOYSA-N", SMILES: "c1ccccc1", Formula: "C6H6", Mass: 78.114},
		{Name: "caffeine", InChI: "InChI=1S/C8H10N4O2/c1-10-4-9-6-5(10)7(13)12(3)8(14)11(6)2/h4H,1-3H3", InChIKey: "RYYVLZVUVIJVGH-UHFFFAOYSA-N", SMILES: "CN1C=NC2=C1C(=O)N(C(=O)N2C)C", Formula: "C8H10N4O2", Mass: 194.19},
	}
}

// Open returns the SQLite catalog at path, or the in-memory fixture when path is empty.
func Open(ctx context.Context, path string) (Catalog, error) {
	if path == "" {
		return NewMemoryCatalog(Fixture()...), nil
	}
	c, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return c, nil
}
