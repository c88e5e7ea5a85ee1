package identifier

import (
	"fmt"
	"strings"
)

type Bank struct {
	Code   string
	Name   string
	Prefix string
}

type VirtualAccount struct {
	BankCode   string
	Number     string
	HolderName string
}

type VirtualAccountRequest struct {
	RoleCode   int
	CIF        CIF
	HolderName string
}

// VirtualAccountAllocator derives one account per partner bank from the CIF
// components. Every prefix has the same length.
type VirtualAccountAllocator struct {
	banks     []Bank
	roleCodes map[int]struct{}
	width     int
	prefixLen int
}

func NewVirtualAccountAllocator(banks []Bank, roleCodes []int, seqWidth int) *VirtualAccountAllocator {
	roles := make(map[int]struct{}, len(roleCodes))
	for _, r := range roleCodes {
		roles[r] = struct{}{}
	}
	prefixLen := 0
	if len(banks) > 0 {
		prefixLen = len(banks[0].Prefix)
	}
	return &VirtualAccountAllocator{
		banks:     append([]Bank(nil), banks...),
		roleCodes: roles,
		width:     seqWidth,
		prefixLen: prefixLen,
	}
}

func (a *VirtualAccountAllocator) PrefixLength() int { return a.prefixLen }

func (a *VirtualAccountAllocator) Supports(roleCode int) bool {
	_, ok := a.roleCodes[roleCode]
	return ok && len(a.banks) > 0
}

// Allocate returns nil for roles without virtual accounts.
func (a *VirtualAccountAllocator) Allocate(req VirtualAccountRequest) []VirtualAccount {
	if !a.Supports(req.RoleCode) {
		return nil
	}
	body := accountBody(req.CIF, a.width)
	out := make([]VirtualAccount, 0, len(a.banks))
	for _, bank := range a.banks {
		out = append(out, VirtualAccount{
			BankCode:   bank.Code,
			Number:     bank.Prefix + body,
			HolderName: strings.TrimSpace(req.HolderName),
		})
	}
	return out
}

// LegacyNumber is the account number as the legacy system stores it, without the bank prefix.
func LegacyNumber(number string, prefixLen int) string {
	if prefixLen <= 0 || prefixLen >= len(number) {
		return number
	}
	return number[prefixLen:]
}

func accountBody(c CIF, width int) string {
	return fmt.Sprintf("%d%d%04d%s%0*d", c.RoleCode, c.CategoryCode, c.CityCode, c.Period, width, c.Sequence)
}
