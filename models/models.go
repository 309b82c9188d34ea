package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Tool int

const (
	ToolCursor Tool = iota
	ToolPen
	ToolHighlighter
	ToolEraser
)

func (t Tool) String() string {
	switch t {
	case ToolPen:
		return "PEN"
	case ToolHighlighter:
		return "HIGHLIGHTER"
	case ToolEraser:
		return "ERASER"
	default:
		return "CURSOR"
	}
}

func (t Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "PEN":
		*t = ToolPen
	case "HIGHLIGHTER":
		*t = ToolHighlighter
	case "ERASER":
		*t = ToolEraser
	case "CURSOR":
		*t = ToolCursor
	default:
		return fmt.Errorf("unknown tool %q", s)
	}
	return nil
}

// Stroke points are in page-local, unscaled coordinates.
type Stroke struct {
	Points []Point `json:"points"`
	Tool   Tool    `json:"type"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// PageAnnotations maps a 1-based page number to its strokes in draw order.
// encoding/json writes the integer keys as decimal strings.
type PageAnnotations map[int][]Stroke

// Clone returns a deep copy safe to hand to asynchronous writers.
func (a PageAnnotations) Clone() PageAnnotations {
	out := make(PageAnnotations, len(a))
	for page, strokes := range a {
		cp := make([]Stroke, len(strokes))
		for i, s := range strokes {
			s.Points = append([]Point(nil), s.Points...)
			cp[i] = s
		}
		out[page] = cp
	}
	return out
}

type Document struct {
	Id           string
	PageCount    int
	DisplayWidth float64
}

// AccessKey is an anonymous, single-document grant with a consumable print counter.
type AccessKey struct {
	Id         string
	DocumentId string
	PrintLimit int
	PrintCount int
	ExpiresAt  *time.Time
}

type ProfileGrant struct {
	ProfileId              string
	FolderIds              []string
	AllowedDocumentIds     []string
	CanPrint               bool
	PerDocumentPrintLimits map[string]int
	ExpiresAt              *time.Time
}

// CredentialContext is what the caller presents; either field may be empty.
type CredentialContext struct {
	AccessKeyId string
	ProfileId   string
}

type PrintSource int

const (
	PrintSourceNone PrintSource = iota
	PrintSourceAccessKey
	PrintSourceProfileLimit
	PrintSourceProfileGlobal
)

func (s PrintSource) String() string {
	switch s {
	case PrintSourceAccessKey:
		return "access_key"
	case PrintSourceProfileLimit:
		return "profile_limit"
	case PrintSourceProfileGlobal:
		return "profile_global"
	default:
		return "none"
	}
}

// Unlimited is reported as RemainingPrints when printing rests on a non-consumable flag.
const Unlimited = -1

type Rights struct {
	CanView         bool        `json:"canView"`
	CanPrint        bool        `json:"canPrint"`
	RemainingPrints int         `json:"remainingPrints"`
	Reason          string      `json:"reason,omitempty"`
	PrintMessage    string      `json:"printMessage,omitempty"`
	Source          PrintSource `json:"-"`
	AccessKeyId     string      `json:"-"`
	ProfileId       string      `json:"-"`
}

// Debit is one unit consumed from a print allowance. JobId makes it idempotent.
type Debit struct {
	JobId       string      `json:"jobId"`
	Source      PrintSource `json:"source"`
	DocumentId  string      `json:"documentId"`
	AccessKeyId string      `json:"accessKeyId,omitempty"`
	ProfileId   string      `json:"profileId,omitempty"`
}

// AnnotationRecord is one durable write of a document's full annotation map.
type AnnotationRecord struct {
	DocumentId  string
	Annotations PageAnnotations
	Updated     time.Time
}

// PositionRecord is the last-read page of a document.
type PositionRecord struct {
	DocumentId string
	Page       int
	Updated    time.Time
}
