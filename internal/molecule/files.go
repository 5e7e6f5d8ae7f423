package molecule

import (
	"path/filepath"
	"strings"

	chem "github.com/rmera/gochem"

	"github.com/copyleftdev/qmdock/internal/errors"
)

// ReadFile loads the first frame of a geometry file. The format is chosen by
// extension: .xyz, .pdb and .gro are supported.
func ReadFile(path string) (Coordinates, error) {
	var (
		mol *chem.Molecule
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xyz":
		mol, err = chem.XYZFileRead(path)
	case ".pdb":
		mol, err = chem.PDBFileRead(path)
	case ".gro":
		mol, err = chem.GroFileRead(path)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported geometry format %q", filepath.Ext(path)).
			WithComponent("molecule")
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "reading %s: %v", path, err).WithComponent("molecule")
	}
	if len(mol.Coords) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "reading %s: no coordinate frames", path).
			WithComponent("molecule")
	}
	return FromDense(mol.Coords[0])
}

// Load accepts either a geometry file path or an inline "x,y,z;..." list.
func Load(src string) (Coordinates, error) {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".xyz", ".pdb", ".gro":
		return ReadFile(src)
	}
	return Parse(src)
}
