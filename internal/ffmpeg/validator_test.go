// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package ffmpeg

import "testing"

func TestValidator(t *testing.T) {
	v, err := NewValidator([]string{"^rtmp://", " ^/media/ ", ""}, []string{`\.\./`})
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	tests := map[string]bool{
		"rtmp://live/stream":   true,
		"/media/in.mp4":        true,
		"/media/../etc/passwd": false,
		"/tmp/in.mp4":          false,
		"http://example.com":   false,
	}
	for address, want := range tests {
		if got := v.IsValid(address); got != want {
			t.Fatalf("IsValid(%q) = %v, want %v", address, got, want)
		}
	}
}

func TestValidatorAllowsEverythingWithoutRules(t *testing.T) {
	v, err := NewValidator(nil, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}
	if !v.IsValid("anything") {
		t.Fatal("expected address to be valid")
	}
}

func TestValidatorInvalidExpression(t *testing.T) {
	if _, err := NewValidator(nil, []string{"("}); err == nil {
		t.Fatal("expected error for invalid block expression")
	}
}
