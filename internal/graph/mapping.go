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
	"fmt"
	"sort"
	"time"

	"github.com/pharmatrade/autoreply/internal/models"
)

// ThreadFromMessages converts Graph messages into an EmailThread, ordered
// oldest first, with sanitized plain-text bodies. The thread ID is the
// conversation ID of the first message, falling back to its message ID.
func ThreadFromMessages(messages []Message) (models.EmailThread, error) {
	if len(messages) == 0 {
		return models.EmailThread{}, fmt.Errorf("at least one message required")
	}

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedDateTime < sorted[j].ReceivedDateTime
	})

	threadID := sorted[0].ConversationID
	if threadID == "" {
		threadID = sorted[0].ID
	}

	emails := make([]models.Email, 0, len(sorted))
	for _, m := range sorted {
		emails = append(emails, models.Email{
			ID:         m.ID,
			Sender:     m.SenderAddress(),
			SenderName: m.SenderName(),
			Subject:    m.Subject,
			Body:       SanitizeBody(m.Body.Content, m.Body.ContentType),
			Timestamp:  parseReceived(m.ReceivedDateTime),
			ThreadID:   m.ConversationID,
		})
	}

	return models.NewThread(threadID, emails)
}

func parseReceived(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
