package facebook

import (
	"context"
	"errors"
	"log/slog"

	fb "github.com/huandu/facebook/v2"

	"github.com/ashureev/estatepost/internal/workflow"
)

// Publish result messages.
const (
	MsgPosted             = "✅ Posted successfully to Facebook!"
	MsgFailed             = "❌ Failed to post to Facebook."
	MsgMissingCredentials = "Facebook credentials (FB_PAGE_ID, FB_PAGE_ACCESS_TOKEN) not set"
)

// PhotoPublisher posts pipeline output as a captioned photo on one page.
type PhotoPublisher struct {
	client    *Client
	pageID    string
	pageToken string
}

var _ workflow.Publisher = (*PhotoPublisher)(nil)

// NewPhotoPublisher creates a publisher for the given page credentials.
func NewPhotoPublisher(client *Client, pageID, pageToken string) *PhotoPublisher {
	return &PhotoPublisher{client: client, pageID: pageID, pageToken: pageToken}
}

// Publish uploads image with caption. Failures are reported in the result.
func (p *PhotoPublisher) Publish(ctx context.Context, caption, filename string, image []byte) workflow.PostResult {
	if p.pageID == "" || p.pageToken == "" {
		return workflow.PostResult{Status: workflow.PostStatusError, Message: MsgMissingCredentials}
	}

	post, err := p.client.PublishPhoto(ctx, p.pageID, p.pageToken, caption, filename, image)
	if err != nil {
		slog.Warn("Photo publish failed", "page_id", p.pageID, "error", err)
		var fbErr *fb.Error
		if errors.As(err, &fbErr) || errors.Is(err, ErrMissingPostID) {
			return workflow.PostResult{
				Status:  workflow.PostStatusError,
				Message: MsgFailed,
				Details: ErrorMessage(err),
			}
		}
		return workflow.PostResult{Status: workflow.PostStatusError, Message: err.Error()}
	}

	slog.Info("Photo published", "page_id", p.pageID, "post_id", post.ID)
	return workflow.PostResult{
		Status:  workflow.PostStatusSuccess,
		Message: MsgPosted,
		PostID:  post.ID,
	}
}
