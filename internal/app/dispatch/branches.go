package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

var (
	errNothingToSend = fmt.Errorf("%w: nothing to send", domain.ErrValidation)
	errNotConfigured = errors.New("service not configured")
)

func (d *Dispatcher) navigate(ctx context.Context, in Navigation, sent string) *Outcome {
	out := &Outcome{Kind: in.Kind(), Intent: in}

	if !d.emit(ctx, out, OutboundMessage{Text: sent}) {
		return out
	}
	if !d.emit(ctx, out, OutboundMessage{Text: routeMessage(in), FromBot: true}) {
		return out
	}

	d.clearInput(sent)
	return out
}

func (d *Dispatcher) weatherReport(ctx context.Context, in WeatherQuery, sent string) *Outcome {
	out := &Outcome{Kind: in.Kind(), Intent: in}

	if !d.emit(ctx, out, OutboundMessage{Text: sent}) {
		return out
	}

	if in.Location == "" {
		d.emit(ctx, out, OutboundMessage{Text: weatherClarification, FromBot: true})
		return out
	}

	placeholder, ok := d.emitPlaceholder(ctx, out, checkingWeather(in.Location))
	if !ok {
		return out
	}

	var (
		report *domain.WeatherReport
		err    = errNotConfigured
	)
	if d.deps.Weather != nil {
		report, err = d.deps.Weather.CurrentWeather(ctx, in.Location)
	}
	if err == nil && (report == nil || report.Message == "") {
		err = errors.New("empty weather report")
	}
	if err != nil {
		d.drop(ctx, out, placeholder)
		out.Err = d.fail(ctx, domain.ErrWeather, "Weather Error",
			"Failed to fetch weather information. Please try again.", err)
		return out
	}

	coords := report.Coordinates
	if !d.resolve(ctx, out, placeholder, OutboundMessage{
		Text:     report.Message,
		FromBot:  true,
		Location: &coords,
	}) {
		return out
	}

	d.clearInput(sent)
	return out
}

func (d *Dispatcher) webSearch(ctx context.Context, in WebSearchTrigger, sent string) *Outcome {
	out := &Outcome{Kind: in.Kind(), Intent: in}

	if !d.emit(ctx, out, OutboundMessage{Text: in.Query}) {
		return out
	}

	placeholder, ok := d.emitPlaceholder(ctx, out, searchingWeb(in.Query))
	if !ok {
		return out
	}

	var (
		results []domain.SearchResult
		err     = errNotConfigured
	)
	if d.deps.Search != nil {
		results, err = d.deps.Search.Search(ctx, in.Query)
	}
	if err != nil {
		d.drop(ctx, out, placeholder)
		out.Err = d.fail(ctx, domain.ErrSearch, "Search Error",
			"Failed to perform web search. Please try again.", err)
		return out
	}

	if !d.resolve(ctx, out, placeholder, OutboundMessage{
		Text:    formatSearchResults(results),
		FromBot: true,
	}) {
		return out
	}

	d.clearInput(sent)
	return out
}

func (d *Dispatcher) chat(ctx context.Context, in PlainChat, sent string) *Outcome {
	out := &Outcome{Kind: in.Kind(), Intent: in}
	log := observability.LoggerFromContext(ctx)

	urls, err := d.upload(ctx, in.Attachments)
	if err != nil {
		// The whole queue goes; the typed text stays for a retry.
		d.dropAttachments(in.Attachments)
		d.setPhase(Phase{State: PhaseFailed})
		out.Err = d.fail(ctx, domain.ErrUpload, "Upload Error",
			"Failed to upload one or more images. Please try again.", err)
		return out
	}

	history, err := d.deps.Log.History(ctx, d.deps.HistoryLimit)
	if err != nil {
		log.Warn("failed to load history, continuing without it", "error", err)
		history = nil
	}

	if !d.emit(ctx, out, OutboundMessage{Text: imageMarkdown(in.Text, urls), ImageURLs: urls}) {
		d.setPhase(Phase{State: PhaseFailed})
		return out
	}
	d.dropAttachments(in.Attachments)

	placeholder, ok := d.emitPlaceholder(ctx, out, thinkingPlaceholder)
	if !ok {
		d.setPhase(Phase{State: PhaseFailed})
		return out
	}

	d.setPhase(Phase{State: PhaseInferring, Uploaded: len(urls), Total: len(urls)})

	prompt := in.Text
	if prompt == "" {
		prompt = "Describe the attached images."
	}

	var reply *domain.ChatReply
	err = errNotConfigured
	if d.deps.LLM != nil {
		reply, err = d.deps.LLM.GenerateReply(ctx, domain.ChatRequest{
			Prompt:    prompt,
			ImageURLs: urls,
			History:   settled(history),
		})
	}
	if err == nil && (reply == nil || strings.TrimSpace(reply.Text) == "") {
		err = errors.New("empty reply")
	}
	if err != nil {
		d.drop(ctx, out, placeholder)
		d.setPhase(Phase{State: PhaseFailed})
		out.Err = d.fail(ctx, domain.ErrInference, "Error",
			"Failed to get response from AI. Please try again.", err)
		return out
	}

	if !d.resolve(ctx, out, placeholder, OutboundMessage{
		Text:    reply.Text,
		FromBot: true,
		Sources: reply.Sources,
	}) {
		d.setPhase(Phase{State: PhaseFailed})
		return out
	}

	d.setPhase(Phase{State: PhaseDone, Uploaded: len(urls), Total: len(urls)})
	d.clearInput(sent)
	return out
}

func (d *Dispatcher) generateImage(ctx context.Context, prompt string) *Outcome {
	out := &Outcome{Kind: KindImageGeneration}

	var (
		imageURL string
		err      = errNotConfigured
	)
	if d.deps.Images != nil {
		imageURL, err = d.deps.Images.GenerateImage(ctx, prompt)
	}
	if err == nil && imageURL == "" {
		err = errors.New("no image was generated")
	}
	if err != nil {
		out.Err = d.fail(ctx, domain.ErrGeneration, "Generation Error",
			"Failed to generate image. Please try again.", err)
		return out
	}

	if !d.emit(ctx, out, OutboundMessage{
		Text:      generatedImage(prompt, imageURL),
		FromBot:   true,
		ImageURLs: []string{imageURL},
	}) {
		return out
	}

	d.clearInput(prompt)
	return out
}

// upload stores attachments one after another, preserving order. The first
// failure aborts the rest.
func (d *Dispatcher) upload(ctx context.Context, atts []Attachment) ([]string, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	if d.deps.Storage == nil {
		return nil, errNotConfigured
	}

	log := observability.LoggerFromContext(ctx)
	urls := make([]string, 0, len(atts))

	d.setPhase(Phase{State: PhaseUploading, Total: len(atts)})
	for i, a := range atts {
		path := fmt.Sprintf("chat/%d-%s%s", d.now().UnixMilli(), d.newID(), a.extension())

		url, err := d.deps.Storage.Upload(ctx, path, mediaType(a.ContentType), a.Data)
		if err != nil {
			return nil, fmt.Errorf("uploading %s: %w", a.Name, err)
		}
		urls = append(urls, url)

		log.Debug("attachment uploaded", "index", i, "path", path)
		d.setPhase(Phase{State: PhaseUploading, Uploaded: i + 1, Total: len(atts)})
	}
	return urls, nil
}

// ─────────────────────────────────────────
// Log helpers
// ─────────────────────────────────────────

// emit appends a message and records it on the outcome.
func (d *Dispatcher) emit(ctx context.Context, out *Outcome, msg OutboundMessage) bool {
	id, err := d.deps.Log.Append(ctx, msg)
	if err != nil {
		out.Err = d.fail(ctx, err, "Error", "Failed to save message. Please try again.", err)
		return false
	}
	out.Messages = append(out.Messages, id)
	return true
}

func (d *Dispatcher) emitPlaceholder(ctx context.Context, out *Outcome, text string) (domain.MessageID, bool) {
	if !d.emit(ctx, out, OutboundMessage{Text: text, FromBot: true, Processing: true}) {
		return "", false
	}
	return out.Messages[len(out.Messages)-1], true
}

// resolve replaces a placeholder with the final reply. If that fails the
// placeholder is removed so it never lingers.
func (d *Dispatcher) resolve(ctx context.Context, out *Outcome, id domain.MessageID, msg OutboundMessage) bool {
	if err := d.deps.Log.Replace(context.WithoutCancel(ctx), id, msg); err != nil {
		d.drop(ctx, out, id)
		out.Err = d.fail(ctx, err, "Error", "Failed to save message. Please try again.", err)
		return false
	}
	return true
}

// drop removes a placeholder from the log and from the outcome.
func (d *Dispatcher) drop(ctx context.Context, out *Outcome, id domain.MessageID) {
	if err := d.deps.Log.Remove(context.WithoutCancel(ctx), id); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to remove placeholder",
			"message_id", id,
			"error", err,
		)
	}
	for i, m := range out.Messages {
		if m == id {
			out.Messages = append(out.Messages[:i], out.Messages[i+1:]...)
			break
		}
	}
}

func (d *Dispatcher) fail(ctx context.Context, kind error, title, desc string, cause error) error {
	err := kind
	if cause != kind {
		err = fmt.Errorf("%w: %v", kind, cause)
	}
	observability.LoggerFromContext(ctx).Error("dispatch branch failed", "title", title, "error", err)
	d.notify(ctx, title, desc)
	return err
}

// settled drops placeholders from the history sent to the LLM.
func settled(history []*domain.Message) []*domain.Message {
	out := make([]*domain.Message, 0, len(history))
	for _, m := range history {
		if !m.Processing {
			out = append(out, m)
		}
	}
	return out
}
