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
	"html"
	"regexp"
	"strings"
)

// Email bodies arrive as HTML or text with quoted history, signatures,
// and corporate security banners attached. SanitizeBody reduces them to
// the plain text the classification and drafting agents should see.

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)>`)
	brRe          = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockOpenRe   = regexp.MustCompile(`(?i)</?(p|div|tr|li|h[1-6]|table|ul|ol|blockquote)\b[^>]*>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)

	// Quoted-reply markers: anything from the marker onward is history.
	quoteMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*On .{5,120} wrote:\s*$`),
		regexp.MustCompile(`(?im)^\s*-{2,}\s*Original Message\s*-{2,}\s*$`),
		regexp.MustCompile(`(?im)^\s*From:\s.+\r?\n\s*Sent:\s.+$`),
		regexp.MustCompile(`(?im)^\s*>{1}\s?From:\s.+$`),
	}

	// Signature markers: the conventional "-- " delimiter and common
	// sign-off-then-disclaimer blocks.
	signatureMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^-- ?$`),
		regexp.MustCompile(`(?im)^\s*(best regards|kind regards|regards|sincerely|thanks|thank you),?\s*$`),
	}

	securityBanners = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^you don'?t often get e?-?mail from .+$`),
		regexp.MustCompile(`(?i)^warning:\s*external\s+e?-?mail.*$`),
		regexp.MustCompile(`(?i)^caution:\s*(this\s+)?(e?-?mail|message)\s+(originated|came)\s+from\s+(outside|external).*$`),
		regexp.MustCompile(`(?i)^external:\s*this\s+e?-?mail.*$`),
		regexp.MustCompile(`(?i)^\[?\s*external\s*\]?:?\s*$`),
		regexp.MustCompile(`(?i)^.*be\s+careful\s+when\s+opening\s+links\s+or\s+attachments.*$`),
		regexp.MustCompile(`(?i)^.*report\s+phishing.*$`),
		regexp.MustCompile(`(?i)^this\s+(message|e?-?mail)\s+has\s+been\s+scanned\s+for\s+(viruses|malware).*$`),
	}

	multiBlank = regexp.MustCompile(`\n{3,}`)
	lineSpace  = regexp.MustCompile(`[ \t]+`)
)

// SanitizeBody converts a message body to trimmed plain text: HTML is
// flattened, quoted history and signatures are cut, and security banners
// removed.
func SanitizeBody(body, contentType string) string {
	text := body
	if strings.EqualFold(contentType, "html") {
		text = htmlToText(text)
	}
	text = stripQuotedReplies(text)
	text = stripSignature(text)
	text = stripBanners(text)
	return normalizeWhitespace(text)
}

func htmlToText(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, "")
	s = brRe.ReplaceAllString(s, "\n")
	s = blockOpenRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

// stripQuotedReplies drops everything from the earliest quote marker on.
func stripQuotedReplies(s string) string {
	cut := len(s)
	for _, re := range quoteMarkers {
		if loc := re.FindStringIndex(s); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return s[:cut]
}

// stripSignature drops a trailing signature block. Sign-off markers only
// count in the last third of the message so a "thanks" in the middle of
// the body survives.
func stripSignature(s string) string {
	for _, re := range signatureMarkers {
		locs := re.FindAllStringIndex(s, -1)
		if len(locs) == 0 {
			continue
		}
		last := locs[len(locs)-1]
		if last[0] >= len(s)*2/3 {
			s = s[:last[0]]
		}
	}
	return s
}

func stripBanners(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		banner := false
		for _, re := range securityBanners {
			if re.MatchString(trimmed) {
				banner = true
				break
			}
		}
		if !banner {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(lineSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
