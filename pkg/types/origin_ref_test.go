package types

import (
	"testing"

	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func TestOriginRefValidate(t *testing.T) {
	cases := []struct {
		name    string
		ref     OriginRef
		wantErr bool
	}{
		{name: "empty defaults to manual", ref: OriginRef{}},
		{name: "manual ignores id", ref: OriginRef{Kind: enums.OriginManual, ID: "x"}},
		{name: "sales order with id", ref: NewOriginRef(enums.OriginSalesOrder, "SO-1")},
		{name: "sales order without id", ref: NewOriginRef(enums.OriginSalesOrder, "  "), wantErr: true},
		{name: "unknown kind", ref: OriginRef{Kind: "carrier_pigeon", ID: "1"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ref.Validate()
			if tc.wantErr {
				if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOriginRefRefPtr(t *testing.T) {
	if ManualOrigin().RefPtr() != nil {
		t.Fatal("manual origin must not carry a ref")
	}
	ref := NewOriginRef(enums.OriginPickingOrder, "abc").RefPtr()
	if ref == nil || *ref != "abc" {
		t.Fatalf("unexpected ref %v", ref)
	}
}
