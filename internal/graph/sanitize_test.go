// Copyright (c) 2026 John Earle
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

package graph

import (
	"strings"
	"testing"
)

func TestSanitizeBodyHTML(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
	}{
		{
			name:        "plain text passes through",
			body:        "Do you have stock of NDC 0001-1234?",
			contentType: "text",
			want:        "Do you have stock of NDC 0001-1234?",
		},
		{
			name:        "block tags become line breaks",
			body:        "<p>Hello</p><br><b>World</b>",
			contentType: "html",
			want:        "Hello\n\nWorld",
		},
		{
			name:        "entities are unescaped",
			body:        "<div>Smith &amp; Sons &lt;orders&gt;</div>",
			contentType: "html",
			want:        "Smith & Sons <orders>",
		},
		{
			name:        "style blocks are dropped",
			body:        "<style>p { color: red; }</style><p>Visible</p>",
			contentType: "html",
			want:        "Visible",
		},
		{
			name:        "html markers ignored in text bodies",
			body:        "The <30 day supply is fine",
			contentType: "text",
			want:        "The <30 day supply is fine",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeBody(tc.body, tc.contentType)
			if got != tc.want {
				t.Errorf("SanitizeBody = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSanitizeBodyQuotedReplies(t *testing.T) {
	body := "Any update on my order?\n\nOn Mon, Mar 2, 2026 at 9:00 AM Dana Buyer wrote:\n> Original question here"
	got := SanitizeBody(body, "text")
	if got != "Any update on my order?" {
		t.Errorf("quoted history not stripped: %q", got)
	}

	body = "Second ask.\n\n-- Original Message --\nFrom: someone"
	got = SanitizeBody(body, "text")
	if got != "Second ask." {
		t.Errorf("original-message block not stripped: %q", got)
	}
}

func TestSanitizeBodySignature(t *testing.T) {
	body := "Can you confirm availability of NDC 0001-1234 at the Memphis warehouse?\n\nThanks,\nDana Buyer\n555-0100"
	got := SanitizeBody(body, "text")
	if strings.Contains(got, "555-0100") || strings.Contains(got, "Dana Buyer") {
		t.Errorf("signature survived: %q", got)
	}
	if !strings.Contains(got, "Memphis warehouse") {
		t.Errorf("body content lost: %q", got)
	}

	// A sign-off early in the message is content, not a signature.
	body = "Thanks,\nthat answered my first question. Now, separately, can you also confirm the allocation for 2026 on the same NDC before Friday?"
	got = SanitizeBody(body, "text")
	if !strings.Contains(got, "allocation for 2026") {
		t.Errorf("mid-body sign-off cut the message: %q", got)
	}
}

func TestSanitizeBodyBanners(t *testing.T) {
	body := "CAUTION: This email originated from outside the organization.\nYou don't often get email from buyer@distributor.com.\n\nDo you have stock of NDC 0001-1234?"
	got := SanitizeBody(body, "text")
	if got != "Do you have stock of NDC 0001-1234?" {
		t.Errorf("banners not stripped: %q", got)
	}
}

func TestSanitizeBodyWhitespace(t *testing.T) {
	body := "Line one\r\n\r\n\r\n\r\nLine   two\t\tend"
	got := SanitizeBody(body, "text")
	if got != "Line one\n\nLine two end" {
		t.Errorf("whitespace not normalized: %q", got)
	}
}
