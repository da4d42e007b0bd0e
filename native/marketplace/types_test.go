package marketplace

import (
	"math/big"
	"testing"

	"staychain/core/types"
)

func TestSanitizeListing(t *testing.T) {
	seller := newTestAddress(0x11)

	got, err := SanitizeListing(&Listing{TokenID: 1, SalePrice: nil, Seller: seller, Status: ListingActive})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if got.SalePrice == nil || got.SalePrice.Sign() != 0 {
		t.Fatalf("nil price must normalize to zero")
	}

	if _, err := SanitizeListing(nil); err == nil {
		t.Fatalf("expected error for nil listing")
	}
	if _, err := SanitizeListing(&Listing{TokenID: 1, SalePrice: big.NewInt(-1), Seller: seller}); err == nil {
		t.Fatalf("expected error for negative price")
	}
	if _, err := SanitizeListing(&Listing{TokenID: 1, SalePrice: big.NewInt(1), Status: ListingStatus(9)}); err == nil {
		t.Fatalf("expected error for invalid status")
	}
	if _, err := SanitizeListing(&Listing{TokenID: 1, SalePrice: big.NewInt(1), Seller: types.Address{}, Status: ListingActive}); err == nil {
		t.Fatalf("expected error for active listing without seller")
	}
}

func TestListingCloneIsDeep(t *testing.T) {
	original := &Listing{TokenID: 1, SalePrice: big.NewInt(100), Seller: newTestAddress(0x11), Status: ListingActive}
	clone := original.Clone()
	clone.SalePrice.SetInt64(999)
	if original.SalePrice.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("clone aliases sale price")
	}
}
