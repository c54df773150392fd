package npm

import "testing"

func TestPackageIDSerialization(t *testing.T) {
	tests := []struct {
		name string
		id   *PackageID
		want string
	}{
		{
			name: "no peers",
			id:   NewPackageID(PackageNv{"react", "18.2.0"}),
			want: "react@18.2.0",
		},
		{
			name: "one peer",
			id: &PackageID{
				Nv:    PackageNv{"react-dom", "18.2.0"},
				Peers: []*PackageID{NewPackageID(PackageNv{"react", "18.2.0"})},
			},
			want: "react-dom@18.2.0_react@18.2.0",
		},
		{
			name: "two peers keep order",
			id: &PackageID{
				Nv: PackageNv{"a", "1.0.0"},
				Peers: []*PackageID{
					NewPackageID(PackageNv{"c", "3.0.0"}),
					NewPackageID(PackageNv{"b", "2.0.0"}),
				},
			},
			want: "a@1.0.0_c@3.0.0_b@2.0.0",
		},
		{
			name: "nested peer uses double underscore",
			id: &PackageID{
				Nv: PackageNv{"a", "1.0.0"},
				Peers: []*PackageID{
					{
						Nv:    PackageNv{"b", "2.0.0"},
						Peers: []*PackageID{NewPackageID(PackageNv{"c", "3.0.0"})},
					},
				},
			},
			want: "a@1.0.0_b@2.0.0__c@3.0.0",
		},
		{
			name: "nested peer followed by sibling",
			id: &PackageID{
				Nv: PackageNv{"a", "1.0.0"},
				Peers: []*PackageID{
					{
						Nv:    PackageNv{"b", "2.0.0"},
						Peers: []*PackageID{NewPackageID(PackageNv{"c", "3.0.0"})},
					},
					NewPackageID(PackageNv{"d", "4.0.0"}),
				},
			},
			want: "a@1.0.0_b@2.0.0__c@3.0.0_d@4.0.0",
		},
		{
			name: "scoped peer name escaped",
			id: &PackageID{
				Nv:    PackageNv{"@scope/main", "1.0.0"},
				Peers: []*PackageID{NewPackageID(PackageNv{"@scope/peer", "2.0.0"})},
			},
			want: "@scope/main@1.0.0_@scope+peer@2.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.id.String()
			if got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}

			parsed, err := ParsePackageID(got)
			if err != nil {
				t.Fatalf("ParsePackageID(%q) error = %v", got, err)
			}
			if !parsed.Equal(tt.id) {
				t.Errorf("round trip: got %q, want %q", parsed.String(), tt.want)
			}
		})
	}
}

func TestParsePackageIDUnderscoreName(t *testing.T) {
	// npm names may contain underscores; the separator scan must not
	// split inside them.
	id, err := ParsePackageID("a@1.0.0_lodash._baseclone@4.17.0")
	if err != nil {
		t.Fatalf("ParsePackageID() error = %v", err)
	}
	if len(id.Peers) != 1 || id.Peers[0].Nv != (PackageNv{"lodash._baseclone", "4.17.0"}) {
		t.Errorf("unexpected peers: %v", id.Peers)
	}
}

func TestParsePackageIDErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"react",
		"react@",
		"@types/node",
		"a@1.0.0___b@2.0.0",
	} {
		if _, err := ParsePackageID(input); err == nil {
			t.Errorf("ParsePackageID(%q) expected error", input)
		}
	}
}

func TestPackageIDClone(t *testing.T) {
	id := &PackageID{
		Nv:    PackageNv{"a", "1.0.0"},
		Peers: []*PackageID{NewPackageID(PackageNv{"b", "2.0.0"})},
	}
	cp := id.Clone()
	if !cp.Equal(id) {
		t.Fatal("clone is not equal to original")
	}
	cp.Peers[0].Nv.Version = "9.9.9"
	if id.Peers[0].Nv.Version != "2.0.0" {
		t.Error("clone shares peer storage with original")
	}
}
