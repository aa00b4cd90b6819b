package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential identifies the calling identity used for a batch of items.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Valid reports whether both parts of the credential are present.
func (c Credential) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// ContactItem is one unit of dialing work: a primary party plus up to two
// emergency contacts. Immutable once enqueued.
type ContactItem struct {
	ID            uuid.UUID
	Name          string
	PrimaryNumber string
	EC1Name       string
	EC1Number     string
	EC2Name       string
	EC2Number     string
	AmountDue     string
	Credential    Credential
	EnqueuedAt    time.Time
}

// Snapshot returns the display view of the item, without the credential.
func (i *ContactItem) Snapshot() ContactSnapshot {
	return ContactSnapshot{
		Name:          i.Name,
		PrimaryNumber: i.PrimaryNumber,
		EC1Name:       i.EC1Name,
		EC1Number:     i.EC1Number,
		EC2Name:       i.EC2Name,
		EC2Number:     i.EC2Number,
		AmountDue:     i.AmountDue,
	}
}

// ContactSnapshot is the credential-free view of an item exposed to status
// queries and display clients.
type ContactSnapshot struct {
	Name          string `json:"name"`
	PrimaryNumber string `json:"phone"`
	EC1Name       string `json:"ec_name_1"`
	EC1Number     string `json:"ec_phone_1"`
	EC2Name       string `json:"ec_name_2"`
	EC2Number     string `json:"ec_phone_2"`
	AmountDue     string `json:"total_due"`
}

// Phase labels one stage of the per-item dial sequence.
type Phase string

const (
	PhaseLogin          Phase = "LOGIN"
	PhaseCallingPrimary Phase = "CALLING_PRIMARY"
	PhasePrimary        Phase = "PRIMARY"
	PhaseCallingEC1     Phase = "CALLING_EC1"
	PhaseEC1            Phase = "EC1"
	PhaseCallingEC2     Phase = "CALLING_EC2"
	PhaseEC2            Phase = "EC2"
)

// DialDetail refines the outcome of one telephony attempt.
type DialDetail string

const (
	DetailRinging       DialDetail = "ringing"
	DetailAnswered      DialDetail = "answered"
	DetailTimeout       DialDetail = "timeout"
	DetailDisconnected  DialDetail = "disconnected"
	DetailBridged       DialDetail = "bridged"
	DetailAgentNoAnswer DialDetail = "agent_no_answer"
	DetailPeerNoAnswer  DialDetail = "peer_no_answer"
	DetailAborted       DialDetail = "aborted"
	DetailError         DialDetail = "error"
)

// DialOutcome captures the result of one telephony attempt.
type DialOutcome struct {
	Answered bool       `json:"answered"`
	Detail   DialDetail `json:"detail"`
	Reason   string     `json:"reason,omitempty"`
}

// ProgressUpdate is published for every phase transition of an item.
// Answered is nil for pre-call announcements (detail "ringing").
type ProgressUpdate struct {
	Contact  ContactSnapshot `json:"contact"`
	Identity string          `json:"identity"`
	Phase    Phase           `json:"phase"`
	Number   string          `json:"number"`
	Answered *bool           `json:"answered"`
	Detail   DialDetail      `json:"detail"`
	Reason   string          `json:"reason,omitempty"`
}

// ActionUpdate reports an operator control action.
type ActionUpdate struct {
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// DatasetUpdate announces a freshly submitted batch.
type DatasetUpdate struct {
	Identity string            `json:"identity"`
	Items    []ContactSnapshot `json:"items"`
	Count    int               `json:"count"`
}
