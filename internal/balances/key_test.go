package balances

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func TestCanonicalDedupesAndSorts(t *testing.T) {
	item := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	locA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	locB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	keys := Canonical([]Key{
		NewKey("t2", item, locA),
		NewKey("t1", item, locB),
		NewKey("t1", item, locA),
		NewKey("t1", item, locB),
	})
	if len(keys) != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", len(keys))
	}
	if keys[0] != NewKey("t1", item, locA) || keys[1] != NewKey("t1", item, locB) || keys[2] != NewKey("t2", item, locA) {
		t.Fatalf("unexpected order: %v", keys)
	}
}

func TestKeyValidate(t *testing.T) {
	if err := NewKey("t1", uuid.New(), uuid.New()).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Key{}.Validate()
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || len(details) != 3 {
		t.Fatalf("expected three field details, got %#v", pkgerrors.As(err).Details())
	}
}

func TestLockName(t *testing.T) {
	k := NewKey("acme", uuid.Nil, uuid.Nil)
	want := "balance:acme:" + uuid.Nil.String() + ":" + uuid.Nil.String()
	if k.LockName() != want {
		t.Fatalf("want %s got %s", want, k.LockName())
	}
}
