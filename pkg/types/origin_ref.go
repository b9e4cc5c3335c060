package types

import (
	"strings"

	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// OriginRef tags the document that caused a movement or reservation. Manual
// origins carry no ID; every other kind must reference one.
type OriginRef struct {
	Kind enums.OriginKind `json:"kind"`
	ID   string           `json:"id,omitempty"`
}

// ManualOrigin is the origin of operator-initiated operations.
func ManualOrigin() OriginRef {
	return OriginRef{Kind: enums.OriginManual}
}

// NewOriginRef builds an origin reference.
func NewOriginRef(kind enums.OriginKind, id string) OriginRef {
	return OriginRef{Kind: kind, ID: strings.TrimSpace(id)}
}

// Normalize defaults an empty kind to manual and drops IDs on manual origins.
func (o OriginRef) Normalize() OriginRef {
	if o.Kind == "" {
		o.Kind = enums.OriginManual
	}
	o.ID = strings.TrimSpace(o.ID)
	if !o.Kind.RequiresID() {
		o.ID = ""
	}
	return o
}

// Validate checks the kind and the presence of an ID where required.
func (o OriginRef) Validate() error {
	o = o.Normalize()
	if !o.Kind.IsValid() {
		return pkgerrors.Invalid("unknown origin kind").WithDetails(map[string]string{"origin_kind": string(o.Kind)})
	}
	if o.Kind.RequiresID() && o.ID == "" {
		return pkgerrors.Invalid("origin id is required").WithDetails(map[string]string{"origin_id": "is required for " + string(o.Kind)})
	}
	return nil
}

// RefPtr returns the ID as a nullable column value.
func (o OriginRef) RefPtr() *string {
	o = o.Normalize()
	if o.ID == "" {
		return nil
	}
	id := o.ID
	return &id
}
