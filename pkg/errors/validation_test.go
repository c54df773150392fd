package errors

import "testing"

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "react", false},
		{"valid scoped", "@types/node", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"double slash", "a//b", true},
		{"backslash", "a\\b", true},
		{"control char", "react\x01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNpmPackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "lodash", false},
		{"valid scoped", "@babel/core", false},
		{"valid with dots", "lodash.merge", false},
		{"uppercase rejected", "React", true},
		{"leading dot rejected", ".hidden", true},
		{"spaces rejected", "foo bar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNpmPackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNpmPackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://registry.npmjs.org"); err != nil {
		t.Errorf("ValidateURL() error = %v", err)
	}
	if err := ValidateURL("ftp://example.com"); err == nil {
		t.Error("ValidateURL() expected error for ftp scheme")
	}
	if err := ValidateURL(""); err == nil {
		t.Error("ValidateURL() expected error for empty URL")
	}
}
