package seed

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"

	"github.com/medvault/medvault/internal/repository/encrypted"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

func newVault(t *testing.T) *encrypted.Vault {
	t.Helper()
	key, err := vaultcrypto.Rand(vaultcrypto.KeyLen)
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	codec, err := vaultcrypto.NewAEADCodec(key)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return encrypted.New(securestore.NewMemory(), codec, nil)
}

func TestApply(t *testing.T) {
	t.Parallel()
	v := newVault(t)
	ctx := context.Background()
	acc := uuid.Must(uuid.NewV4())

	if err := Apply(ctx, acc, v.Records(), v.Providers(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	recs, err := v.Records().ListAll(ctx, acc)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: %d", len(recs))
	}
	for _, r := range recs {
		if len(r.HIPAA.AccessHistory) == 0 {
			t.Fatalf("fixture %q has no access history", r.Title)
		}
	}

	provs, err := v.Providers().List(ctx, acc)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(provs) != 1 {
		t.Fatalf("providers: %d", len(provs))
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()
	v := newVault(t)
	ctx := context.Background()
	acc := uuid.Must(uuid.NewV4())

	if err := Apply(ctx, acc, v.Records(), v.Providers(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := Apply(ctx, acc, v.Records(), v.Providers(), nil); err != nil {
		t.Fatalf("reapply: %v", err)
	}

	recs, _ := v.Records().ListAll(ctx, acc)
	if len(recs) != 3 {
		t.Fatalf("records after reseed: %d", len(recs))
	}
	provs, _ := v.Providers().List(ctx, acc)
	if len(provs) != 1 {
		t.Fatalf("providers after reseed: %d", len(provs))
	}
}

func TestApply_DoesNotTouchOtherAccounts(t *testing.T) {
	t.Parallel()
	v := newVault(t)
	ctx := context.Background()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	if err := Apply(ctx, a, v.Records(), v.Providers(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	recs, err := v.Records().ListAll(ctx, b)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("leak: %+v", recs)
	}
}
