package app

import (
	"context"
	"errors"
	"fmt"

	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
	"github.com/vadim/mention-tracker/internal/httpx/upstream/twitter"
)

// mentionListerAdapter adapts twitter.Client to fetch.MentionLister
type mentionListerAdapter struct {
	client *twitter.Client
}

func (a *mentionListerAdapter) ListMentions(ctx context.Context, userID, accessToken, sinceID string) ([]entity.RawMention, error) {
	page, err := a.client.ListMentions(ctx, twitter.ListMentionsInput{
		UserID:      userID,
		AccessToken: accessToken,
		SinceID:     sinceID,
	})
	if err != nil {
		return nil, mapUpstreamError(err, "mentions")
	}

	out := make([]entity.RawMention, 0, len(page.Tweets))
	for _, t := range page.Tweets {
		item := entity.RawMention{
			ID:        t.ID,
			Text:      t.Text,
			AuthorID:  t.AuthorID,
			CreatedAt: t.CreatedAt,
		}
		if u, ok := page.Authors[t.AuthorID]; ok {
			item.Author = &entity.RawAuthor{
				ID:              u.ID,
				Username:        u.Username,
				Name:            u.Name,
				ProfileImageURL: u.ProfileImageURL,
			}
		}
		out = append(out, item)
	}

	return out, nil
}

// replierAdapter adapts twitter.Client to service.Replier
type replierAdapter struct {
	client *twitter.Client
}

func (a *replierAdapter) Reply(ctx context.Context, accessToken, inReplyTo, text string) (string, error) {
	id, err := a.client.Reply(ctx, twitter.ReplyInput{
		AccessToken: accessToken,
		InReplyTo:   inReplyTo,
		Text:        text,
	})
	if err != nil {
		var apiErr *twitter.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return "", fmt.Errorf("%w: %v", mentionentity.ErrReplyRejected, err)
		}
		return "", mapUpstreamError(err, "tweets")
	}
	return id, nil
}

// mapUpstreamError translates client errors into the polling failure taxonomy
func mapUpstreamError(err error, source string) error {
	var rle *twitter.RateLimitError
	var apiErr *twitter.APIError

	switch {
	case errors.As(err, &rle):
		return &entity.RateLimitedError{ResetAt: rle.ResetAt, Source: source}
	case errors.Is(err, twitter.ErrUnauthorized):
		return fmt.Errorf("%w: %v", entity.ErrUnauthorized, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &apiErr) && !apiErr.Temporary():
		return err
	default:
		return entity.Transient(err)
	}
}
