package poolid

import (
	"testing"

	"github.com/bitcoinfees/feesim/testutil"
)

func TestLoadRegistry(t *testing.T) {
	data := []byte(`{
		"payout_addresses": {"1Addr1": {"name": "PoolA"}, "1Addr2": {"name": "PoolB"}},
		"coinbase_tags": {"/NiceHash/": {"name": "PoolC"}}
	}`)
	r, err := LoadRegistry(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(len(r.PayoutAddresses), 2); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(len(r.CoinbaseTags), 1); err != nil {
		t.Error(err)
	}

	// Empty registry still gets non-nil maps, so identify never nil-derefs.
	r2, err := LoadRegistry([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if r2.PayoutAddresses == nil || r2.CoinbaseTags == nil {
		t.Error("expected non-nil maps on empty registry")
	}
}

func TestRegistryIdentify(t *testing.T) {
	r := &Registry{
		PayoutAddresses: map[string]PoolAttrs{
			"1Addr1": {Name: "PoolA"},
			"1Addr2": {Name: "PoolB"},
		},
		CoinbaseTags: map[string]PoolAttrs{
			"/NiceHash/": {Name: "PoolC"},
		},
	}

	// Address match.
	name, conflict := r.identify([]string{"1Addr1"}, nil)
	if err := testutil.CheckEqual(name, "PoolA"); err != nil {
		t.Error(err)
	}
	if conflict {
		t.Error("unexpected conflict")
	}

	// Tag match, no address match.
	name, conflict = r.identify(nil, []byte("mined by /NiceHash/ today"))
	if err := testutil.CheckEqual(name, "PoolC"); err != nil {
		t.Error(err)
	}
	if conflict {
		t.Error("unexpected conflict")
	}

	// No match at all.
	name, conflict = r.identify([]string{"1Unknown"}, []byte("nothing"))
	if err := testutil.CheckEqual(name, ""); err != nil {
		t.Error(err)
	}
	if conflict {
		t.Error("unexpected conflict")
	}

	// Conflicting address matches: two different pools both matched by
	// distinct addresses in the same coinbase.
	name, conflict = r.identify([]string{"1Addr1", "1Addr2"}, nil)
	if !conflict {
		t.Error("expected conflict between PoolA and PoolB")
	}
	if name != "PoolA" {
		t.Errorf("expected first match (PoolA) kept, got %q", name)
	}
}

func TestUnknownPoolName(t *testing.T) {
	if err := testutil.CheckEqual(unknownPoolName("1A2B3C4D5E6F7G8H9I"), "1A2B3C4D5E6F_"); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(unknownPoolName("short"), "short_"); err != nil {
		t.Error(err)
	}
}
