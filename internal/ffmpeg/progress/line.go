// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package progress

import (
	"strings"
	"unicode"
)

// ParseLine splits a protocol line at the first '='. The key is right-trimmed
// and the value left-trimmed after trimming the whole line. ok is false when
// the line has no '='.
func ParseLine(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimRightFunc(key, unicode.IsSpace), strings.TrimLeftFunc(value, unicode.IsSpace), true
}
