package sqlengine

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"context"
)

// InitVectorExtension verifies the sqlite-vec extension loaded on this
// connection and is able to create vec0 virtual tables. It is called once
// per Engine before any vec_<collection>_dense table is created or
// queried, and its failure is one of the three fatal startup conditions.
func (e *Engine) InitVectorExtension(ctx context.Context) error {
	var version string
	row, err := e.QueryRow(ctx, "SELECT vec_version()")
	if err != nil {
		return apperrors.New(apperrors.KindVector, apperrors.SeverityCritical, "sqlengine", "InitVectorExtension",
			apperrors.ErrVectorExtensionMissing)
	}
	if err := row.Scan(&version); err != nil {
		return apperrors.New(apperrors.KindVector, apperrors.SeverityCritical, "sqlengine", "InitVectorExtension",
			apperrors.ErrVectorExtensionMissing).WithParams(map[string]any{"cause": err.Error()})
	}
	return nil
}

// SerializeVector packs a dense embedding into the float32 blob format
// sqlite-vec expects for vec0 columns and MATCH query parameters.
func SerializeVector(vec []float32) ([]byte, error) {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, apperrors.New(apperrors.KindVector, apperrors.SeverityMedium, "sqlengine", "SerializeVector", err)
	}
	return blob, nil
}
