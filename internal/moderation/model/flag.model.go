package model

import (
	"fmt"
	"time"
)

const (
	// ApproveThreshold resolves a flag as valid once net votes reach it.
	ApproveThreshold = 5
	// RejectThreshold resolves a flag as invalid once net votes fall to it.
	RejectThreshold = -3
)

type FlagType string

const (
	FlagInaccuracy           FlagType = "inaccuracy"
	FlagOutdated             FlagType = "outdated"
	FlagCitationNeeded       FlagType = "citation_needed"
	FlagClassificationBreach FlagType = "classification_breach"
	FlagFormatting           FlagType = "formatting"
	FlagOther                FlagType = "other"
)

func ParseFlagType(s string) (FlagType, error) {
	switch t := FlagType(s); t {
	case FlagInaccuracy, FlagOutdated, FlagCitationNeeded, FlagClassificationBreach, FlagFormatting, FlagOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown flag type %q", s)
}

// Flag is a quality concern anchored to the span [StartOffset, EndOffset) of
// a document as it was when the flag was raised.
type Flag struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	FlagType    FlagType  `json:"flag_type"`
	Comment     string    `json:"comment"`
	NetVotes    int       `json:"net_votes"`
	Resolved    bool      `json:"resolved"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

type Vote struct {
	FlagID string `json:"flag_id"`
	UserID string `json:"user_id"`
	Value  int    `json:"value"`
}

type CreateFlagRequest struct {
	DocID       string `json:"document_id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	FlagType    string `json:"flag_type"`
	Comment     string `json:"comment"`
}

type VoteRequest struct {
	FlagID string `json:"flag_id"`
	Value  int    `json:"value"`
}
