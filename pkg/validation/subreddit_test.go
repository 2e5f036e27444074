package validation

import (
	"testing"
)

func TestSanitizeSubreddit(t *testing.T) {
	tests := []struct {
		name      string
		subreddit string
		want      string
		wantErr   bool
	}{
		// Valid names
		{"simple", "espresso", "espresso", false},
		{"with digits", "ads101", "ads101", false},
		{"with underscore", "graphic_design", "graphic_design", false},
		{"min length", "abc", "abc", false},
		{"max length", "a12345678901234567890", "a12345678901234567890", false},
		{"r/ prefix stripped", "r/espresso", "espresso", false},
		{"R/ prefix stripped", "R/espresso", "espresso", false},
		{"surrounding whitespace", "  espresso  ", "espresso", false},

		// Invalid names - injection attempts and malformed input
		{"empty", "", "", true},
		{"path traversal", "../api/v1/me", "", true},
		{"slash injection", "all/top", "", true},
		{"query injection", "all?after=x", "", true},
		{"leading underscore", "_private", "", true},
		{"too short", "ab", "", true},
		{"too long", "a123456789012345678901", "", true},
		{"spaces inside", "two words", "", true},
		{"unicode", "café", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeSubreddit(tt.subreddit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeSubreddit(%q) error = %v, wantErr %v", tt.subreddit, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeSubreddit(%q) = %q, want %q", tt.subreddit, got, tt.want)
			}
		})
	}
}

func TestSanitizeSubredditErrorMessages(t *testing.T) {
	_, err := SanitizeSubreddit("")
	if err == nil || err.Error() != "Subreddit name cannot be empty" {
		t.Errorf("unexpected empty-name error: %v", err)
	}

	_, err = SanitizeSubreddit("r/..")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Invalid subreddit name 'r/..': must be 3-21 characters, " +
		"alphanumeric and underscores only, cannot start with underscore"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestValidateSortOrder(t *testing.T) {
	for _, sort := range []string{"hot", "new", "top", "rising"} {
		if err := ValidateSortOrder(sort); err != nil {
			t.Errorf("ValidateSortOrder(%q) = %v, want nil", sort, err)
		}
	}
	for _, sort := range []string{"", "Hot", "best", "top.json", "../hot"} {
		if err := ValidateSortOrder(sort); err == nil {
			t.Errorf("ValidateSortOrder(%q) = nil, want error", sort)
		}
	}
}
