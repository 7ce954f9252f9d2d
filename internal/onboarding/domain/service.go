package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// EvidenceRef mirrors the verification store's opaque file reference.
type EvidenceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

type SubmitRequest struct {
	OrgKind         string
	SchoolCode      string
	SchoolName      string
	AssociationName string
	ContactName     string
	ContactEmail    string
	ContactPhone    string
	EvidenceRefs    []EvidenceRef
}

type ReviewRequest struct {
	RequestID snowflake.ID
	Decision  string
	Reason    string
}

type Service interface {
	Submit(ctx context.Context, applicantID snowflake.ID, req SubmitRequest) (*Request, error)
	ListPending(ctx context.Context, reviewerID snowflake.ID, limit int) ([]Request, error)
	ListMine(ctx context.Context, applicantID snowflake.ID) ([]Request, error)
	GetRequest(ctx context.Context, viewerID snowflake.ID, requestID snowflake.ID) (*Request, error)
	Review(ctx context.Context, reviewerID snowflake.ID, req ReviewRequest) (*Request, error)
}
