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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const messageSelect = "id,conversationId,receivedDateTime,subject,from,toRecipients,replyTo,body,isDraft"

// Maximum subscription lifetime for mail messages is 4230 minutes.
const maxSubscriptionMinutes = 4230

// Client is the network-backed Provider talking to the Graph API. The
// http.Client carries OAuth2 credentials (clientcredentials transport)
// and manages its own connection pool.
type Client struct {
	httpClient   *http.Client
	graphBaseURL string
}

// NewClient creates a Graph API mail provider.
func NewClient(httpClient *http.Client, graphBaseURL string) *Client {
	return &Client{
		httpClient:   httpClient,
		graphBaseURL: graphBaseURL,
	}
}

// mailboxPath returns the URL prefix for a mailbox: "me" for the default
// mailbox or "users/{id}" when a user is named.
func (c *Client) mailboxPath(userID string) string {
	if userID == "" {
		return c.graphBaseURL + "/me"
	}
	return fmt.Sprintf("%s/users/%s", c.graphBaseURL, url.PathEscape(userID))
}

func (c *Client) get(ctx context.Context, u string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "outlook.body-content-type=\"text\"")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("graph GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode graph response: %w", err)
	}
	return true, nil
}

// GetMessage retrieves a single message. Returns nil, nil when Graph
// reports 404 — newly delivered messages can lag behind their
// notification, and the worker retries around that.
func (c *Client) GetMessage(ctx context.Context, userID, messageID string) (*Message, error) {
	u := fmt.Sprintf("%s/messages/%s?$select=%s", c.mailboxPath(userID), url.PathEscape(messageID), messageSelect)

	var msg Message
	found, err := c.get(ctx, u, &msg)
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	if !found {
		slog.Debug("message not found", "user_id", userID, "message_id", messageID)
		return nil, nil
	}
	return &msg, nil
}

// listResponse is a page of a Graph collection response.
type listResponse struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// GetConversation retrieves all messages sharing a conversation ID,
// ordered oldest first.
func (c *Client) GetConversation(ctx context.Context, userID, conversationID string) ([]Message, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", conversationID))
	params.Set("$orderby", "receivedDateTime asc")
	params.Set("$select", messageSelect)
	next := fmt.Sprintf("%s/messages?%s", c.mailboxPath(userID), params.Encode())

	var out []Message
	for next != "" {
		var page listResponse
		found, err := c.get(ctx, next, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch conversation %s: %w", conversationID, err)
		}
		if !found {
			break
		}
		out = append(out, page.Value...)
		next = page.NextLink
	}
	return out, nil
}

// replyPayload is the body of the /reply and /createReply actions.
type replyPayload struct {
	Comment string `json:"comment"`
}

func (c *Client) post(ctx context.Context, u string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, rd)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("graph POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, respBody)
	}
	if out != nil && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode graph response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// ReplyToMessage sends a reply to the message's sender. Graph's /reply
// action returns 202 with no body, so the returned Message carries only a
// synthetic reference to the replied-to message.
func (c *Client) ReplyToMessage(ctx context.Context, userID, messageID, comment string) (*Message, error) {
	u := fmt.Sprintf("%s/messages/%s/reply", c.mailboxPath(userID), url.PathEscape(messageID))
	if _, err := c.post(ctx, u, replyPayload{Comment: comment}, nil); err != nil {
		return nil, fmt.Errorf("reply to message %s: %w", messageID, err)
	}
	slog.Info("reply sent", "user_id", userID, "reply_to_message_id", messageID)
	return &Message{
		ID:               "reply-to:" + messageID,
		ReceivedDateTime: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CreateReplyDraft creates (but does not send) a reply draft in the
// mailbox. Used by draft-only mode.
func (c *Client) CreateReplyDraft(ctx context.Context, userID, messageID, comment string) (*Message, error) {
	u := fmt.Sprintf("%s/messages/%s/createReply", c.mailboxPath(userID), url.PathEscape(messageID))
	var draft Message
	if _, err := c.post(ctx, u, replyPayload{Comment: comment}, &draft); err != nil {
		return nil, fmt.Errorf("create reply draft for %s: %w", messageID, err)
	}
	slog.Info("reply draft created", "user_id", userID, "draft_id", draft.ID)
	return &draft, nil
}

// subscriptionPayload is the Graph subscription creation body.
type subscriptionPayload struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}

// CreateSubscription registers a change-notification subscription for new
// inbox messages. The expiration is capped at the Graph mail maximum.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	exp := req.Expiration
	if max := maxSubscriptionMinutes * time.Minute; exp <= 0 || exp > max {
		exp = max
	}
	clientState := req.ClientState
	if len(clientState) > 128 {
		clientState = clientState[:128]
	}
	payload := subscriptionPayload{
		ChangeType:         "created",
		NotificationURL:    req.NotificationURL,
		Resource:           "me/mailFolders('Inbox')/messages",
		ExpirationDateTime: time.Now().UTC().Add(exp).Format(time.RFC3339),
		ClientState:        clientState,
	}

	var sub Subscription
	if _, err := c.post(ctx, c.graphBaseURL+"/subscriptions", payload, &sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	slog.Info("subscription created",
		"subscription_id", sub.ID,
		"expires", sub.ExpiresAt.Format(time.RFC3339),
	)
	return &sub, nil
}

// RenewSubscription extends a subscription's expiration.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, extension time.Duration) (*Subscription, error) {
	if max := maxSubscriptionMinutes * time.Minute; extension <= 0 || extension > max {
		extension = max
	}
	body := map[string]string{
		"expirationDateTime": time.Now().UTC().Add(extension).Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal renewal: %w", err)
	}

	u := fmt.Sprintf("%s/subscriptions/%s", c.graphBaseURL, url.PathEscape(subscriptionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renew subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var sub Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("decode renewal response: %w", err)
	}
	slog.Info("subscription renewed",
		"subscription_id", sub.ID,
		"expires", sub.ExpiresAt.Format(time.RFC3339),
	)
	return &sub, nil
}
