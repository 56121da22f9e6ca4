package model

import "fmt"

// Family identifies the contract family an AMM belongs to.
type Family string

const (
	FamilyConstantProduct Family = "constant-product"
	FamilyHybridCurve     Family = "hybrid-curve"
	FamilyVault           Family = "vault"
	FamilyHypervisor      Family = "hypervisor"
	FamilyStablePool      Family = "stable-pool"
)

// Families lists every supported family.
func Families() []Family {
	return []Family{
		FamilyConstantProduct,
		FamilyHybridCurve,
		FamilyVault,
		FamilyHypervisor,
		FamilyStablePool,
	}
}

// ParseFamily validates a family name.
func ParseFamily(s string) (Family, error) {
	for _, f := range Families() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown amm family %q", s)
}
