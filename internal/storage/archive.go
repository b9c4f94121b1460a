package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

// RawPage is the archived form of one mention listing response
type RawPage struct {
	AccountID string              `json:"account_id"`
	FetchedAt time.Time           `json:"fetched_at"`
	ItemCount int                 `json:"item_count"`
	Items     []entity.RawMention `json:"items"`
}

// MentionArchive writes raw mention pages to object storage
type MentionArchive struct {
	storage *S3Storage
}

// NewMentionArchive creates an archive on top of storage
func NewMentionArchive(storage *S3Storage) *MentionArchive {
	return &MentionArchive{storage: storage}
}

// ArchivePage stores one page as a JSON object
func (a *MentionArchive) ArchivePage(ctx context.Context, accountID string, page []entity.RawMention) error {
	body, err := json.Marshal(RawPage{
		AccountID: accountID,
		FetchedAt: a.storage.now().UTC(),
		ItemCount: len(page),
		Items:     page,
	})
	if err != nil {
		return fmt.Errorf("encoding raw page: %w", err)
	}

	_, err = a.storage.Upload(ctx, UploadInput{
		Reader:      bytes.NewReader(body),
		ContentType: "application/json",
		Size:        int64(len(body)),
		Dir:         accountID,
		Ext:         ".json",
	})
	return err
}
