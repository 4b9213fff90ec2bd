package post

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"simple", "Cool Mod", "Cool Mod", nil},
		{"trimmed", "  Cool Mod \n", "Cool Mod", nil},
		{"exact limit", strings.Repeat("a", MaxTitleLen), strings.Repeat("a", MaxTitleLen), nil},
		{"over limit", strings.Repeat("a", MaxTitleLen+1), "", ErrTitleTooLong},
		{"multibyte at limit", strings.Repeat("ж", MaxTitleLen), strings.Repeat("ж", MaxTitleLen), nil},
		{"empty", "   ", "", ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTitle(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateLink(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"https://example.com/mod.zip", true},
		{"http://x", true},
		{" https://example.com ", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"https://", false},
		{"https://a b", false},
	}
	for _, tt := range tests {
		_, err := ValidateLink(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateLink(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidLink) {
			t.Errorf("ValidateLink(%q) err = %v, want ErrInvalidLink", tt.in, err)
		}
	}
}

func TestParseChannels(t *testing.T) {
	all := []string{"@YAKMODS", "@other"}
	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr error
	}{
		{"single with at", "@YAKMODS", []string{"@YAKMODS"}, nil},
		{"normalized", "YAKMODS mods_2", []string{"@YAKMODS", "@mods_2"}, nil},
		{"comma separated", "@a,@b", []string{"@a", "@b"}, nil},
		{"duplicates dropped", "@a @A a", []string{"@a"}, nil},
		{"all", "all", all, nil},
		{"all upper", "ALL", all, nil},
		{"invalid char", "@bad-name", nil, ErrInvalidChannel},
		{"empty", "   ", nil, ErrNoChannels},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannels(tt.in, all)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseChannels_AllWithoutTable(t *testing.T) {
	_, err := ParseChannels("all", nil)
	if !errors.Is(err, ErrNoChannels) {
		t.Errorf("err = %v, want ErrNoChannels", err)
	}
}

func TestValidationErrorAs(t *testing.T) {
	_, err := NormalizeChannel("bad channel!")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != "channel" {
		t.Errorf("Field = %q, want channel", ve.Field)
	}
}

func validPost() *Post {
	return &Post{
		Title:            "Mod",
		Media:            Media{Kind: MediaPhoto, Ref: "photo:1"},
		Link:             "https://example.com",
		Category:         "mapping",
		SelectedChannels: []string{"@YAKMODS"},
	}
}

func TestPostValidate(t *testing.T) {
	if err := validPost().Validate(DefaultCategories); err != nil {
		t.Fatalf("valid post rejected: %v", err)
	}

	p := validPost()
	p.File = &File{Ref: "doc:1", Name: "a.zip"}
	if err := p.Validate(DefaultCategories); !errors.Is(err, ErrAmbiguousPayload) {
		t.Errorf("file+link err = %v, want ErrAmbiguousPayload", err)
	}

	p = validPost()
	p.Link = ""
	if err := p.Validate(DefaultCategories); !errors.Is(err, ErrMissingField) {
		t.Errorf("no payload err = %v, want ErrMissingField", err)
	}

	p = validPost()
	p.Category = "nope"
	if err := p.Validate(DefaultCategories); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("category err = %v, want ErrUnknownCategory", err)
	}

	p = validPost()
	p.SelectedChannels = nil
	if err := p.Validate(DefaultCategories); !errors.Is(err, ErrNoChannels) {
		t.Errorf("channels err = %v, want ErrNoChannels", err)
	}
}

func TestPostClone(t *testing.T) {
	p := validPost()
	p.File = &File{Ref: "doc:1", Name: "a.zip", Size: 10}
	p.Link = ""
	p.Published = nil
	c := p.Clone()
	c.File.Name = "changed"
	c.SelectedChannels[0] = "@x"
	if p.File.Name != "a.zip" || p.SelectedChannels[0] != "@YAKMODS" {
		t.Error("Clone shares memory with the original")
	}
}
