package poolid

import "encoding/json"

// PoolAttrs names the pool that a registry entry maps to.
type PoolAttrs struct {
	Name string `json:"name"`
}

// Registry is the static table of known payout addresses and coinbase tags
// used to identify which pool mined a block, loaded from a JSON file in the
// same shape as the upstream project's poolinfo.json.
type Registry struct {
	PayoutAddresses map[string]PoolAttrs `json:"payout_addresses"`
	CoinbaseTags    map[string]PoolAttrs `json:"coinbase_tags"`
}

func LoadRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.PayoutAddresses == nil {
		r.PayoutAddresses = make(map[string]PoolAttrs)
	}
	if r.CoinbaseTags == nil {
		r.CoinbaseTags = make(map[string]PoolAttrs)
	}
	return &r, nil
}

// identify returns the pool name matching the given coinbase payout
// addresses or tag bytes ("" if none matches), and whether two matches
// named different pools. Addresses are checked before tags, and the first
// match is kept.
func (r *Registry) identify(addrs []string, tag []byte) (name string, conflict bool) {
	found := false
	for _, addr := range addrs {
		if attrs, ok := r.PayoutAddresses[addr]; ok {
			if found && name != attrs.Name {
				conflict = true
				continue
			}
			name, found = attrs.Name, true
		}
	}
	tagstr := string(tag)
	for ptag, attrs := range r.CoinbaseTags {
		if ptag == "" {
			continue
		}
		if containsSubstr(tagstr, ptag) {
			if found && name != attrs.Name {
				conflict = true
				continue
			}
			name, found = attrs.Name, true
		}
	}
	return name, conflict
}

func containsSubstr(s, substr string) bool {
	if substr == "" {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
