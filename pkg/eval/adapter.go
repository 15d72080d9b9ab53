// Copyright 2025 The CoorAgent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eval

import (
	"regexp"
	"strings"
)

// answerMarkerPatterns are tried in priority order over the whole text: a
// "Final Answer" anywhere beats an earlier "Result".
var (
	answerMarkerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)final answer\s*[:\-]\s*(.+)`),
		regexp.MustCompile(`(?i)answer\s*[:\-]\s*(.+)`),
		regexp.MustCompile(`(?i)result\s*[:\-]\s*(.+)`),
	}
	numericPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)
)

// ExtractAnswer pulls the candidate answer out of a run's assembled text.
// Precedence: an explicit "Final Answer"/"Answer"/"Result" marker (first
// line after the marker, trailing punctuation stripped), then the last
// numeric token, then the full trimmed text.
func ExtractAnswer(text string) string {
	for _, pattern := range answerMarkerPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		line := m[1]
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		return strings.TrimRight(strings.TrimSpace(line), ". ")
	}
	if nums := numericPattern.FindAllString(text, -1); len(nums) > 0 {
		return nums[len(nums)-1]
	}
	return strings.TrimSpace(text)
}

// DefaultScore applies the substring-match accuracy rule. The other
// dimensions stay zero unless a benchmark overrides them.
func DefaultScore(extracted, expected string) Score {
	var s Score
	if expected == "" {
		return s
	}
	want := strings.ToLower(strings.TrimSpace(expected))
	got := strings.ToLower(strings.TrimSpace(extracted))
	if want != "" && strings.Contains(got, want) {
		s.Accuracy = 1.0
	}
	return s
}
