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

// Package webhook handles Microsoft Graph change notifications for new
// inbox messages: it validates and filters each notification, feeds
// surviving candidates through a bounded queue to a worker pool, and has
// the workers run the reply pipeline exactly once per message.
package webhook

import "regexp"

// ChangeNotification is a single Graph change notification.
type ChangeNotification struct {
	SubscriptionID string        `json:"subscriptionId"`
	ChangeType     string        `json:"changeType"`
	ClientState    string        `json:"clientState"`
	Resource       string        `json:"resource"`
	ResourceData   *ResourceData `json:"resourceData"`
	TenantID       string        `json:"tenantId"`
}

// ResourceData carries the fallback resource identifier.
type ResourceData struct {
	ODataType string `json:"@odata.type"`
	ID        string `json:"id"`
}

// NotificationBatch is the wrapper Graph POSTs: {"value": [...]}.
type NotificationBatch struct {
	Value []ChangeNotification `json:"value"`
}

// resourceRe matches a notification resource path, with an optional
// mailbox segment. Graph sends capitalised and lowercase variants:
// "Users/{guid}/Messages/{id}", "users/{guid}/messages/{id}",
// "me/Messages/{id}".
var resourceRe = regexp.MustCompile(`(?i)(?:users/([^/]+)/)?messages/([^/?#]+)`)

// ParseNotificationResource extracts (messageID, userID) from a change
// notification. userID is empty when the notification refers to the
// default mailbox.
//
// Strategy, in order: match the resource path; match resourceData.id with
// the same pattern; treat the raw resourceData.id as the message ID.
// Both empty only when the notification carries no resource information.
func ParseNotificationResource(n ChangeNotification) (messageID, userID string) {
	if m := resourceRe.FindStringSubmatch(n.Resource); m != nil {
		return m[2], m[1]
	}
	if n.ResourceData == nil || n.ResourceData.ID == "" {
		return "", ""
	}
	if m := resourceRe.FindStringSubmatch(n.ResourceData.ID); m != nil {
		return m[2], m[1]
	}
	return n.ResourceData.ID, ""
}
