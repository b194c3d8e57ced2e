// Package webhook receives WhatsApp webhook deliveries and runs the
// audio-to-report pipeline: classify the payload, fetch the media,
// transcribe it, generate the report, and reply to the sender.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carescribe/internal/domain"
	"carescribe/internal/metrics"
	"carescribe/internal/whatsapp"
)

// User-facing reply texts. Each failing pipeline stage maps to exactly one
// of these; the report itself is the success reply.
const (
	replyHelp = `Welcome to the Mental Health Caregiver Audio-to-Report Bot!

To use this bot:
1. Send an audio recording of your patient conversation
2. Wait while I process the audio and generate a report
3. You'll receive a structured report with key observations

The report will include:
- Overview of the conversation
- Key points discussed
- Mental health observations
- Concerning patterns
- Urgent concerns
- Recommendations

Please ensure your audio recording is clear.`

	replyAudioOnly      = "I can only process audio recordings. Please send an audio message of your patient conversation."
	replyDocRejected    = "I can only process audio files. Please send an audio message or audio file."
	replyProcessing     = "I'm processing your audio recording. This may take a few minutes..."
	replyURLFailed      = "Failed to retrieve audio URL. Please try sending the audio again."
	replyDownloadFailed = "Failed to download audio. Please try sending the audio again."
	replyTranscribeFail = "Failed to transcribe the audio. Please try again with a clearer recording."
	replyReportFail     = "Failed to generate the report. Please try again."
	replyGenericError   = "I encountered an error processing your audio. Please try again."
)

// Result is the process-local outcome of one pipeline run. It feeds logs,
// metrics, and the processing archive; the HTTP caller only ever sees a
// generic acknowledgment.
type Result struct {
	Status        string // "success" | "error" | "acknowledged" | "no message"
	Message       string
	TranscriptLen int
	Report        string
}

// Pipeline orchestrates the collaborators for one inbound event at a time.
// It holds no per-request state; concurrent webhook calls run it in
// parallel on their own goroutines.
type Pipeline struct {
	fetcher    domain.MediaFetcher
	transcribe domain.Transcriber
	generator  domain.ReportGenerator
	dispatcher domain.Dispatcher
	store      domain.RecordStore // optional
	logger     *slog.Logger

	eventsTotal        *metrics.CounterVec
	repliesSent        *metrics.Counter
	stageFailures      *metrics.CounterVec
	transcribeDuration *metrics.Summary
}

type PipelineConfig struct {
	Fetcher    domain.MediaFetcher
	Transcribe domain.Transcriber
	Generator  domain.ReportGenerator
	Dispatcher domain.Dispatcher
	Store      domain.RecordStore
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		transcribe: cfg.Transcribe,
		generator:  cfg.Generator,
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		logger:     cfg.Logger,

		eventsTotal:        reg.CounterVec("carescribe_events_total", "Inbound webhook events by kind.", "kind"),
		repliesSent:        reg.Counter("carescribe_replies_sent_total", "Outbound replies dispatched."),
		stageFailures:      reg.CounterVec("carescribe_stage_failures_total", "Pipeline stage failures.", "stage"),
		transcribeDuration: reg.Summary("carescribe_transcribe_seconds", "Audio transcription wall time."),
	}
}

// Classify maps a raw webhook payload onto an InboundEvent. Malformed or
// partially missing payloads never fail: absent levels degrade to an empty
// value object and classify as "no message".
func (p *Pipeline) Classify(payload whatsapp.Payload) domain.InboundEvent {
	var value whatsapp.Value
	if len(payload.Entry) > 0 && len(payload.Entry[0].Changes) > 0 {
		value = payload.Entry[0].Changes[0].Value
	}

	if len(value.Statuses) > 0 {
		return domain.InboundEvent{Kind: domain.KindStatusUpdate}
	}
	if len(value.Messages) == 0 {
		return domain.InboundEvent{Kind: domain.KindNoMessage}
	}

	msg := value.Messages[0]
	if msg.From == "" {
		return domain.InboundEvent{Kind: domain.KindNoSender}
	}

	// The platform omits type on some text deliveries; absent means text.
	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}

	event := domain.InboundEvent{From: msg.From, Type: msgType}

	switch msgType {
	case "audio", "document":
		event.Kind = domain.KindMedia
		media := msg.Audio
		if msg.Type == "document" {
			media = msg.Document
		}
		if media != nil {
			event.Media = &domain.MediaReference{ID: media.ID, MimeType: media.MimeType}
		}
	case "text":
		event.Kind = domain.KindText
		if msg.Text != nil {
			event.Text = msg.Text.Body
		}
	default:
		event.Kind = domain.KindUnsupported
	}

	return event
}

// Process runs the classified event to its terminal state. Every text or
// media event ends in exactly one terminal reply; status updates and
// unaddressable events end in none. The only error returned is a dispatch
// failure, which the HTTP handler surfaces as a generic error response.
func (p *Pipeline) Process(ctx context.Context, event domain.InboundEvent) (Result, error) {
	p.eventsTotal.Inc(string(event.Kind))

	switch event.Kind {
	case domain.KindStatusUpdate:
		p.logger.Debug("status update acknowledged")
		return Result{Status: "acknowledged", Message: "status update received"}, nil

	case domain.KindNoMessage:
		p.logger.Warn("no messages found in webhook payload")
		return Result{Status: "no message"}, nil

	case domain.KindNoSender:
		p.logger.Warn("message received without a phone number")
		return Result{Status: "error", Message: "no phone number provided"}, nil

	case domain.KindText:
		return p.processText(ctx, event)

	case domain.KindMedia:
		return p.processMedia(ctx, event)

	default:
		p.logger.Warn("unsupported message type", "type", event.Type)
		if err := p.reply(ctx, event.From, replyAudioOnly); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "unsupported message type"}, nil
	}
}

func (p *Pipeline) processText(ctx context.Context, event domain.InboundEvent) (Result, error) {
	body := strings.TrimSpace(event.Text)
	if strings.EqualFold(body, "help") || strings.EqualFold(body, "start") {
		if err := p.reply(ctx, event.From, replyHelp); err != nil {
			return Result{}, err
		}
		return Result{Status: "success"}, nil
	}

	if err := p.reply(ctx, event.From, replyAudioOnly); err != nil {
		return Result{}, err
	}
	return Result{Status: "error", Message: "unsupported message type"}, nil
}

// processMedia drives the sequential media pipeline. Each stage's failure
// short-circuits to one error reply; an unexpected panic inside the
// sequence is caught here and converted to the generic apology.
func (p *Pipeline) processMedia(ctx context.Context, event domain.InboundEvent) (res Result, dispatchErr error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing audio message", "panic", fmt.Sprint(r))
			p.stageFailures.Inc("panic")
			dispatchErr = p.reply(ctx, event.From, replyGenericError)
			res = Result{Status: "error", Message: fmt.Sprint(r)}
		}
	}()

	// Document attachments must actually carry audio or video.
	if event.Type == "document" {
		if event.Media == nil || !event.Media.IsAudioLike() {
			mime := ""
			if event.Media != nil {
				mime = event.Media.MimeType
			}
			p.logger.Warn("unsupported document type", "mime_type", mime)
			if err := p.reply(ctx, event.From, replyDocRejected); err != nil {
				return Result{}, err
			}
			return Result{Status: "error", Message: "unsupported document type"}, nil
		}
	}

	if event.Media == nil || event.Media.ID == "" {
		p.logger.Error("media message without a media id")
		p.stageFailures.Inc("resolve")
		if err := p.reply(ctx, event.From, replyURLFailed); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "failed to get media URL"}, nil
	}

	mediaURL, err := p.fetcher.ResolveURL(ctx, event.Media.ID)
	if err != nil || mediaURL == "" {
		p.logger.Error("failed to get media URL", "media_id", event.Media.ID, "err", err)
		p.stageFailures.Inc("resolve")
		if err := p.reply(ctx, event.From, replyURLFailed); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "failed to get media URL"}, nil
	}

	audio, err := p.fetcher.Download(ctx, mediaURL)
	if err != nil || len(audio) == 0 {
		p.logger.Error("failed to download media", "err", err)
		p.stageFailures.Inc("download")
		if err := p.reply(ctx, event.From, replyDownloadFailed); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "failed to download media"}, nil
	}
	p.logger.Info("audio downloaded", "bytes", len(audio))

	// Interim reply: sets expectations while transcription runs. Sent once
	// the download succeeds, regardless of what happens downstream.
	if err := p.reply(ctx, event.From, replyProcessing); err != nil {
		return Result{}, err
	}

	fileType := event.Media.FileType()
	p.logger.Info("starting transcription", "file_type", fileType)

	start := time.Now()
	transcript, err := p.transcribe.Transcribe(ctx, audio, fileType)
	p.transcribeDuration.Observe(time.Since(start).Seconds())
	if err != nil || transcript == "" {
		p.logger.Error("transcription failed", "err", err)
		p.stageFailures.Inc("transcribe")
		if err := p.reply(ctx, event.From, replyTranscribeFail); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "transcription failed"}, nil
	}
	p.logger.Info("transcription successful", "text_len", len(transcript))

	reportText, err := p.generator.Generate(ctx, transcript)
	if err != nil || reportText == "" {
		p.logger.Error("report generation failed", "err", err)
		p.stageFailures.Inc("generate")
		if err := p.reply(ctx, event.From, replyReportFail); err != nil {
			return Result{}, err
		}
		return Result{Status: "error", Message: "report generation failed", TranscriptLen: len(transcript)}, nil
	}

	if err := p.reply(ctx, event.From, reportText); err != nil {
		return Result{}, err
	}
	return Result{Status: "success", TranscriptLen: len(transcript), Report: reportText}, nil
}

func (p *Pipeline) reply(ctx context.Context, to, body string) error {
	if err := p.dispatcher.Send(ctx, to, body); err != nil {
		p.stageFailures.Inc("dispatch")
		return fmt.Errorf("dispatch reply: %w", err)
	}
	p.repliesSent.Inc()
	return nil
}
