package model

import "testing"

func TestMergeHigherVersionWins(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x")}.WithHash()
	incoming := Value{Version: 2, OriginatorID: "A", Data: []byte("y")}.WithHash()

	result, merged := Merge(&local, incoming)
	if result != MergeIncomingWins {
		t.Fatalf("expected incoming to win, got %v", result)
	}
	if merged.Version != 2 {
		t.Fatalf("expected merged version 2, got %d", merged.Version)
	}
}

func TestMergeTieBrokenByOriginator(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x")}.WithHash()
	incoming := Value{Version: 1, OriginatorID: "B", Data: []byte("x")}.WithHash()

	result, _ := Merge(&local, incoming)
	if result != MergeIncomingWins {
		t.Fatalf("expected B (lexicographically higher) to win, got %v", result)
	}

	result2, _ := Merge(&incoming, local)
	if result2 != MergeLocalWins {
		t.Fatalf("expected A to lose against local B, got %v", result2)
	}
}

func TestMergeFullTieKeepsLocal(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x")}.WithHash()
	incoming := local // identical in every merge-order field

	result, _ := Merge(&local, incoming)
	if result != MergeLocalWins {
		t.Fatalf("expected full tie to keep local, got %v", result)
	}
}

func TestTTLRefreshAcceptedOnIdentity(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x"), TTL: 1000, TTLVersion: 1}.WithHash()
	refresh := Value{Version: 1, OriginatorID: "A", Data: nil, TTL: 1000, TTLVersion: 2, Hash: local.Hash}

	result, merged := Merge(&local, refresh)
	if result != MergeTTLRefresh {
		t.Fatalf("expected ttl refresh accepted, got %v", result)
	}
	if merged.TTLVersion != 2 {
		t.Fatalf("expected ttl-version advanced to 2, got %d", merged.TTLVersion)
	}
	if string(merged.Data) != "x" {
		t.Fatalf("refresh must not replace data with nil-derived content")
	}
}

func TestTTLRefreshRejectedOnIdentityMismatch(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x"), TTL: 1000, TTLVersion: 1}.WithHash()
	refresh := Value{Version: 2, OriginatorID: "A", Data: nil, TTL: 1000, TTLVersion: 2, Hash: local.Hash}

	result, _ := Merge(&local, refresh)
	if result != MergeRejectedRefresh {
		t.Fatalf("expected mismatched refresh to be rejected, got %v", result)
	}
}

func TestTTLRefreshRejectedOnStaleTTLVersion(t *testing.T) {
	local := Value{Version: 1, OriginatorID: "A", Data: []byte("x"), TTL: 1000, TTLVersion: 3}.WithHash()
	refresh := Value{Version: 1, OriginatorID: "A", Data: nil, TTL: 1000, TTLVersion: 2, Hash: local.Hash}

	result, _ := Merge(&local, refresh)
	if result != MergeRejectedRefresh {
		t.Fatalf("expected stale ttl-version refresh to be rejected, got %v", result)
	}
}

func TestHashDeterministic(t *testing.T) {
	h1 := ComputeHash(5, "nodeA", []byte("payload"))
	h2 := ComputeHash(5, "nodeA", []byte("payload"))
	if h1 != h2 {
		t.Fatalf("hash must be deterministic: %d != %d", h1, h2)
	}
	h3 := ComputeHash(5, "nodeA", []byte("other"))
	if h1 == h3 {
		t.Fatalf("different data should (overwhelmingly likely) hash differently")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	key := AdjKey("node1.area1")
	node, ok := ParseAdjKey(key)
	if !ok || node != "node1.area1" {
		t.Fatalf("ParseAdjKey(%q) = %q, %v", key, node, ok)
	}

	pkey := PrefixKey("node1", "area1", "v4/24:10.0.0.0")
	n, a, enc, ok := ParsePrefixKey(pkey)
	if !ok || n != "node1" || a != "area1" || enc != "v4/24:10.0.0.0" {
		t.Fatalf("ParsePrefixKey(%q) = %q,%q,%q,%v", pkey, n, a, enc, ok)
	}
}
