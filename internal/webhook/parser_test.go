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

package webhook

import "testing"

func TestParseNotificationResource(t *testing.T) {
	tests := []struct {
		name        string
		notif       ChangeNotification
		wantMessage string
		wantUser    string
	}{
		{
			name: "user scoped resource",
			notif: ChangeNotification{
				Resource: "Users/11aa22bb-3c4d-5e6f-7890-abcdef012345/Messages/AAMkAGI2TAAA=",
			},
			wantMessage: "AAMkAGI2TAAA=",
			wantUser:    "11aa22bb-3c4d-5e6f-7890-abcdef012345",
		},
		{
			name: "me scoped resource",
			notif: ChangeNotification{
				Resource: "me/Messages/AAMkAGI2TAAA=",
			},
			wantMessage: "AAMkAGI2TAAA=",
			wantUser:    "",
		},
		{
			name: "lowercase path segments",
			notif: ChangeNotification{
				Resource: "users/u-123/messages/m-456",
			},
			wantMessage: "m-456",
			wantUser:    "u-123",
		},
		{
			name: "resource with query string",
			notif: ChangeNotification{
				Resource: "Users/u-1/Messages/m-1?$select=id",
			},
			wantMessage: "m-1",
			wantUser:    "u-1",
		},
		{
			name: "falls back to resource data id",
			notif: ChangeNotification{
				Resource:     "chats/whatever",
				ResourceData: &ResourceData{ID: "Users/u-9/Messages/m-9"},
			},
			wantMessage: "m-9",
			wantUser:    "u-9",
		},
		{
			name: "raw resource data id",
			notif: ChangeNotification{
				ResourceData: &ResourceData{ID: "AAMkRaw="},
			},
			wantMessage: "AAMkRaw=",
			wantUser:    "",
		},
		{
			name:        "empty notification",
			notif:       ChangeNotification{},
			wantMessage: "",
			wantUser:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMessage, gotUser := ParseNotificationResource(tt.notif)
			if gotMessage != tt.wantMessage {
				t.Errorf("message id = %q, want %q", gotMessage, tt.wantMessage)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user id = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}
