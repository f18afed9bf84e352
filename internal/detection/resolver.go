package detection

import (
	"sort"

	"token-detector/internal/domain"
)

// Resolve returns the catalog addresses not covered by exclusions, sorted by
// lower-cased address. Case-variant duplicates collapse to the first in
// sorted order.
func Resolve(list domain.TokenList, exclusions *Exclusions) []string {
	addrs := make([]string, 0, len(list))
	for addr := range list {
		if !exclusions.Contains(addr) {
			addrs = append(addrs, addr)
		}
	}

	sort.Slice(addrs, func(i, j int) bool {
		ki, kj := domain.AddressKey(addrs[i]), domain.AddressKey(addrs[j])
		if ki != kj {
			return ki < kj
		}
		return addrs[i] < addrs[j]
	})

	out := addrs[:0]
	var prev string
	for i, addr := range addrs {
		key := domain.AddressKey(addr)
		if i > 0 && key == prev {
			continue
		}
		prev = key
		out = append(out, addr)
	}
	return out
}

// catalogIndex maps lower-cased addresses to catalog entries.
type catalogIndex map[string]domain.CatalogEntry

// indexCatalog picks the same entry as Resolve when case variants collide.
func indexCatalog(list domain.TokenList) catalogIndex {
	idx := make(catalogIndex, len(list))
	chosen := make(map[string]string, len(list))
	for addr, entry := range list {
		key := domain.AddressKey(addr)
		if prev, ok := chosen[key]; ok && prev <= addr {
			continue
		}
		chosen[key] = addr
		idx[key] = entry
	}
	return idx
}

func (idx catalogIndex) lookup(address string) (domain.CatalogEntry, bool) {
	entry, ok := idx[domain.AddressKey(address)]
	return entry, ok
}
