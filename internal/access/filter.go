package access

import (
	"strings"

	"github.com/roadwatch/roadwatch-go/internal/errors"
)

// Caller is the transient identity supplied by the auth collaborator per
// request. A zero Caller is an unauthenticated citizen-equivalent.
type Caller struct {
	UserID           string
	Email            string
	Role             Role
	JurisdictionArea string
}

// Anonymous returns the caller context used for unauthenticated requests.
func Anonymous() Caller {
	return Caller{Role: RoleCitizen}
}

// RegionTags are the immutable region tags set on a record at creation.
type RegionTags struct {
	State    string
	District string
	Mandal   string
}

// Field returns the tag value for the given region field.
func (t RegionTags) Field(f RegionField) string {
	switch f {
	case RegionState:
		return t.State
	case RegionDistrict:
		return t.District
	case RegionMandal:
		return t.Mandal
	default:
		return ""
	}
}

// regionEqual compares region names case-insensitively, ignoring surrounding
// whitespace.
func regionEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Filter decides record visibility and mutability per caller.
type Filter struct {
	// Strict makes an authority with no jurisdiction area on file see nothing
	// instead of everything. The permissive default preserves the historical
	// fail-open behavior.
	Strict bool
}

// Visible reports whether a record with the given region tags is visible to
// the caller. Citizens and national authorities see everything.
func (f *Filter) Visible(caller Caller, tags RegionTags) bool {
	field := ScopeField(caller.Role)
	if field == RegionNone {
		return true
	}

	area := strings.TrimSpace(caller.JurisdictionArea)
	if area == "" {
		// Authority with no jurisdiction area on file: fail open unless the
		// strict mode is enabled.
		return !f.Strict
	}

	return regionEqual(area, tags.Field(field))
}

// Mutable reports whether the caller may mutate a record with the given region
// tags and fixed state. A fixed record is immutable to every caller.
func (f *Filter) Mutable(caller Caller, tags RegionTags, fixed bool) error {
	if fixed {
		return errors.Newf("record is marked as fixed and can no longer be modified").
			Component("access").
			Category(errors.CategoryImmutableState).
			Build()
	}

	if !caller.Role.IsAuthority() {
		return errors.Newf("role %s may not update incident records", caller.Role).
			Component("access").
			Category(errors.CategoryAuthorization).
			Context("role", string(caller.Role)).
			Build()
	}

	field := ScopeField(caller.Role)
	if field == RegionNone {
		// National authority, unrestricted.
		return nil
	}

	area := strings.TrimSpace(caller.JurisdictionArea)
	recordArea := strings.TrimSpace(tags.Field(field))
	if area == "" || recordArea == "" {
		if f.Strict {
			return errors.Newf("caller has no jurisdiction area on file").
				Component("access").
				Category(errors.CategoryAuthorization).
				Build()
		}
		// Fail open, matching visibility behavior.
		return nil
	}

	if !regionEqual(area, recordArea) {
		return errors.Newf("record is outside jurisdiction %q", caller.JurisdictionArea).
			Component("access").
			Category(errors.CategoryAuthorization).
			Context("caller_area", area).
			Context("record_area", recordArea).
			Build()
	}

	return nil
}
