package balances

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// Key identifies one balance: an item at a location for a tenant.
type Key struct {
	TenantID   string
	ItemID     uuid.UUID
	LocationID uuid.UUID
}

// NewKey builds a key.
func NewKey(tenantID string, itemID, locationID uuid.UUID) Key {
	return Key{TenantID: tenantID, ItemID: itemID, LocationID: locationID}
}

// String is the canonical form used for lock names and ordering.
func (k Key) String() string {
	return strings.Join([]string{k.TenantID, k.ItemID.String(), k.LocationID.String()}, ":")
}

// LockName is the name the key is locked under.
func (k Key) LockName() string {
	return "balance:" + k.String()
}

// Less orders keys by tenant, item, then location.
func (k Key) Less(other Key) bool {
	return k.String() < other.String()
}

// Validate rejects keys with missing parts.
func (k Key) Validate() error {
	details := map[string]string{}
	if strings.TrimSpace(k.TenantID) == "" {
		details["tenant_id"] = "is required"
	}
	if k.ItemID == uuid.Nil {
		details["item_id"] = "is required"
	}
	if k.LocationID == uuid.Nil {
		details["location_id"] = "is required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid balance key").WithDetails(details)
	}
	return nil
}

// Canonical returns the distinct keys in lock acquisition order.
func Canonical(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
