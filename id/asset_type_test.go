// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package id

import "testing"

// go test -run 'Intern|Lookup|NameRoundTrip'
func TestInternStable(t *testing.T) {
	types := NewTypes()
	a1 := types.Intern("mesh")
	a2 := types.Intern("mesh")
	if a1 != a2 {
		t.Errorf("Intern must return the same AssetType for the same name")
	}
}

func TestInternDistinct(t *testing.T) {
	types := NewTypes()
	mesh := types.Intern("mesh")
	texture := types.Intern("texture")
	if mesh == texture {
		t.Errorf("distinct names must intern to distinct AssetTypes")
	}
	if mesh == Unknown || texture == Unknown {
		t.Errorf("a minted AssetType must never equal Unknown")
	}
}

func TestLookupUnknown(t *testing.T) {
	types := NewTypes()
	if _, ok := types.Lookup("never-registered"); ok {
		t.Errorf("Lookup should fail for a name that was never interned")
	}
}

func TestNameRoundTrip(t *testing.T) {
	types := NewTypes()
	mesh := types.Intern("mesh")
	if got := types.Name(mesh); got != "mesh" {
		t.Errorf("Name(%d) = %q, want \"mesh\"", mesh, got)
	}
	if got := types.Name(AssetType(999)); got != "" {
		t.Errorf("Name of an un-interned AssetType should be empty, got %q", got)
	}
}
