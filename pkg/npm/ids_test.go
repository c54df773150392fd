package npm

import "testing"

func TestParsePackageNv(t *testing.T) {
	tests := []struct {
		input   string
		want    PackageNv
		wantErr bool
	}{
		{"react@18.2.0", PackageNv{"react", "18.2.0"}, false},
		{"@types/node@20.1.0", PackageNv{"@types/node", "20.1.0"}, false},
		{"react", PackageNv{}, true},
		{"@types/node", PackageNv{}, true},
		{"react@", PackageNv{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePackageNv(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePackageNv(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePackageNv(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePackageReq(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantReq  string
	}{
		{"react@^18", "react", "^18"},
		{"react", "react", "*"},
		{"@types/node@20.x", "@types/node", "20.x"},
		{"@scope/pkg", "@scope/pkg", "*"},
		{"some-pkg@latest", "some-pkg", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePackageReq(tt.input)
			if err != nil {
				t.Fatalf("ParsePackageReq(%q) error = %v", tt.input, err)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Req.String() != tt.wantReq {
				t.Errorf("Req = %q, want %q", got.Req.String(), tt.wantReq)
			}
		})
	}
}

func TestVersionReqMatches(t *testing.T) {
	tests := []struct {
		req     string
		version string
		want    bool
	}{
		{"^2", "2.0.0", true},
		{"^2", "2.9.3", true},
		{"^2", "3.0.0", false},
		{"~1.2", "1.2.9", true},
		{"~1.2", "1.3.0", false},
		{"*", "0.0.1", true},
		{"", "5.4.3", true},
		{">=1 <2", "1.5.0", true},
		{"1.x", "1.7.2", true},
		{"1 - 2", "1.5.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.req+"/"+tt.version, func(t *testing.T) {
			req := MustParseVersionReq(tt.req)
			if got := req.MatchesString(tt.version); got != tt.want {
				t.Errorf("MatchesString(%q, %q) = %v, want %v", tt.req, tt.version, got, tt.want)
			}
		})
	}
}

func TestVersionReqTag(t *testing.T) {
	req := MustParseVersionReq("latest")
	tag, ok := req.Tag()
	if !ok || tag != "latest" {
		t.Errorf("Tag() = %q, %v, want %q, true", tag, ok, "latest")
	}
	if req.MatchesString("1.0.0") {
		t.Error("dist-tag requirement must not match versions directly")
	}

	rng := MustParseVersionReq("^1.0.0")
	if _, ok := rng.Tag(); ok {
		t.Error("range requirement should not report a tag")
	}
}
