package domain

import "context"

// MediaFetcher resolves platform media ids to bytes. Both operations are
// single-attempt remote reads; callers decide what a failure means.
type MediaFetcher interface {
	ResolveURL(ctx context.Context, mediaID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Transcriber converts raw audio bytes into text. fileType is the container
// format ("ogg", "mp3", "mp4") used to pick the decode path. An empty
// transcript is treated as a failure by the pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileType string) (string, error)
}

// ReportGenerator turns a transcript into prose report text. The output is
// opaque: it is forwarded verbatim, never parsed.
type ReportGenerator interface {
	Generate(ctx context.Context, transcript string) (string, error)
}

// Dispatcher sends outbound text replies. Unlike the other collaborators a
// dispatch fault propagates to the caller: if the reply cannot be sent there
// is no further way to notify the user.
type Dispatcher interface {
	Send(ctx context.Context, to, body string) error
}

// RecordStore archives per-message processing outcomes for diagnostics.
// Store failures must never affect message handling.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec ProcessingRecord) error
	Recent(ctx context.Context, limit int) ([]ProcessingRecord, error)
	Close() error
}
