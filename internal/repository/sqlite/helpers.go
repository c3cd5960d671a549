package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"smallarea/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullFloatToSQL converts an optional estimate value to sql.NullFloat64
func nullFloatToSQL(n domain.NullFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: n.Float64, Valid: n.Valid}
}

// sqlToNullFloat converts sql.NullFloat64 back to an optional estimate value
func sqlToNullFloat(n sql.NullFloat64) domain.NullFloat {
	if !n.Valid {
		return domain.Null()
	}
	return domain.Float(n.Float64)
}

// floatPtrToNull converts an optional weight to sql.NullFloat64
func floatPtrToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullToFloatPtr converts sql.NullFloat64 to *float64
func nullToFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// int64PtrToNull converts an optional population size to sql.NullInt64
func int64PtrToNull(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// nullToInt64Ptr converts sql.NullInt64 to *int64
func nullToInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// ============================================================================
// Time Helpers
// ============================================================================

// toMillis stores timestamps as UTC unix milliseconds
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalSliceToNull marshals a slice to a nullable JSON string.
// Empty slices are stored as NULL.
func marshalSliceToNull[T any](v []T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
