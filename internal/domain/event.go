package domain

import (
	"strings"
	"time"
)

// EventKind classifies an inbound webhook payload. Classification happens
// once per webhook call; the event is never persisted.
type EventKind string

const (
	KindStatusUpdate EventKind = "status_update"
	KindNoMessage    EventKind = "no_message"
	KindNoSender     EventKind = "no_sender"
	KindText         EventKind = "text"
	KindMedia        EventKind = "media"
	KindUnsupported  EventKind = "unsupported"
)

// InboundEvent is the classified form of one webhook delivery.
type InboundEvent struct {
	Kind  EventKind
	From  string // sender phone number, required for any reply
	Type  string // raw message type from the platform ("audio", "document", ...)
	Text  string // body for text messages
	Media *MediaReference
}

// MediaReference identifies audio/video content hosted by the messaging
// platform. The id is resolved to a download URL in a separate call.
type MediaReference struct {
	ID       string
	MimeType string
}

// FileType infers the container format from the mime type. The match is
// approximate: it only needs to select the decode path, not validate the
// true format. Unknown types fall back to ogg, the platform's voice-note
// container.
func (m MediaReference) FileType() string {
	switch {
	case strings.Contains(m.MimeType, "mp3"):
		return "mp3"
	case strings.Contains(m.MimeType, "mp4"):
		return "mp4"
	default:
		return "ogg"
	}
}

// IsAudioLike reports whether the mime type is one the service will accept
// for a document attachment.
func (m MediaReference) IsAudioLike() bool {
	return strings.Contains(m.MimeType, "audio/") || strings.Contains(m.MimeType, "video/")
}

// OutboundReply is a user-visible outcome, success or error. Exactly one
// terminal reply is dispatched per text or media event; media events may
// additionally get one interim reply.
type OutboundReply struct {
	To   string
	Body string
}

// ProcessingRecord is the archived outcome of one pipeline run.
type ProcessingRecord struct {
	ID            string
	From          string
	Kind          string
	MediaID       string
	MimeType      string
	FileType      string
	Status        string // "success" | "error" | "acknowledged"
	Detail        string
	TranscriptLen int
	Report        string
	CreatedAt     time.Time
}
