package questpub

import (
	"context"
	"fmt"
	"strings"
)

// Service defines the publication engine: it validates quest content, keeps
// the metadata record and the content artifact in step, and answers searches.
type Service interface {
	// Publication lifecycle
	Publish(ctx context.Context, ownerID, documentID string, content []byte) (string, error)
	Unpublish(ctx context.Context, ownerID, documentID string) (string, error)

	// Read operations
	GetQuest(ctx context.Context, id string) (*Quest, error)
	Search(ctx context.Context, userID string, req SearchRequest) (*SearchResult, error)

	// ValidateContent translates content without storing anything
	ValidateContent(content []byte) (*Quest, error)
}

// UploadPolicy decides what happens to the metadata write when the artifact
// upload fails.
type UploadPolicy string

const (
	// UploadRequired aborts the publish; nothing is written.
	UploadRequired UploadPolicy = "required"
	// UploadBestEffort logs the failure and still writes the metadata record,
	// which may then point at a missing artifact.
	UploadBestEffort UploadPolicy = "best_effort"
)

// ParseUploadPolicy accepts "required" or "best_effort".
func ParseUploadPolicy(s string) (UploadPolicy, error) {
	switch UploadPolicy(s) {
	case UploadRequired, UploadBestEffort:
		return UploadPolicy(s), nil
	case "":
		return UploadRequired, nil
	}
	return "", &ValidationError{Fields: []FieldError{{
		Field:   "upload_policy",
		Kind:    FieldInvalid,
		Message: "must be required or best_effort",
	}}}
}

// OwnerSeparator joins owner and document in a quest id. Owner ids may not
// contain it, so the first occurrence always splits an id unambiguously.
const OwnerSeparator = "_"

// QuestID composes the record id of an owner's document.
func QuestID(ownerID, documentID string) string {
	return ownerID + OwnerSeparator + documentID
}

// CheckDocumentRef rejects owner/document pairs that cannot form a quest id.
func CheckDocumentRef(ownerID, documentID string) error {
	if ownerID == "" || documentID == "" {
		return fmt.Errorf("%w: owner and document id are required", ErrInvalidRequest)
	}
	if strings.Contains(ownerID, OwnerSeparator) {
		return fmt.Errorf("%w: owner id must not contain %q", ErrInvalidRequest, OwnerSeparator)
	}
	return nil
}

// ContentMimeType is stored with every uploaded quest artifact.
const ContentMimeType = "application/xml"
