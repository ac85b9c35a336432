package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/summarize"
	"github.com/groupgist/groupgist/telemetry"
)

const defaultSummaryLimit = 200

type summarizeRequest struct {
	Days   int   `json:"days"`
	Limit  int   `json:"limit"`
	Stream *bool `json:"stream"`
}

// HandleSummarize generates an AI summary of a group's stored history, either
// as one JSON response or as an incrementally flushed SSE stream (default).
func (h *Handlers) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("name")

	if h.summarizer == nil {
		fail(w, "AI summarization is not configured; add a provider config file")
		return
	}

	var req summarizeRequest
	if r.Body != nil {
		// An empty body means "all defaults"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Limit <= 0 {
		req.Limit = defaultSummaryLimit
	}
	streaming := req.Stream == nil || *req.Stream

	// Over-fetch so the day-window filter still has the cap's worth to keep.
	msgs, err := h.fetchGroupMessages(r.Context(), group, req.Limit*2)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("summary fetch failed", slog.String("group", group), slog.Any("err", err))
		fail(w, "failed to fetch messages for summary")
		return
	}
	if len(msgs) == 0 {
		fail(w, "no messages stored for this group")
		return
	}

	chatTitle := group
	if msgs[0].ChatTitle != "" {
		chatTitle = msgs[0].ChatTitle
	}

	msgs = summarize.FilterWindow(msgs, req.Days, time.Now())
	if len(msgs) == 0 {
		fail(w, "no messages in the requested day window")
		return
	}
	if len(msgs) > req.Limit {
		msgs = msgs[:req.Limit]
	}

	telemetry.SummariesStarted.Inc()
	if streaming {
		h.streamSummary(w, r, group, chatTitle, msgs, req.Days)
		return
	}
	h.batchSummary(w, r, group, chatTitle, msgs, req.Days)
}

func (h *Handlers) batchSummary(w http.ResponseWriter, r *http.Request, group, chatTitle string, msgs []db.Message, days int) {
	ctx, span := telemetry.StartSpan(r.Context(), "summarize", "summary-batch")
	defer span.End()

	var summary string
	var genErr error
	telemetry.TimeFunc(telemetry.SummaryDuration, func() {
		summary, genErr = h.summarizer.Summarize(ctx, chatTitle, msgs)
	})
	if genErr != nil {
		telemetry.SummariesFailed.Inc()
		telemetry.RecordError(span, genErr)
		telemetry.LoggerWithCorr(ctx).Error("summary failed", slog.String("group", group), slog.Any("err", genErr))
		fail(w, "summary generation failed; check the AI provider configuration")
		return
	}
	telemetry.SetSpanSuccess(span)

	rangeStart, rangeEnd := summarize.DateRange(msgs)
	writeJSON(w, map[string]any{
		"success":       true,
		"group":         chatTitle,
		"group_name":    group,
		"summary":       summary,
		"message_count": len(msgs),
		"date_range":    map[string]string{"start": rangeStart, "end": rangeEnd},
		"days":          days,
	})
}

// streamSummary relays completion fragments as SSE frames: one start frame,
// a chunk frame per fragment, then exactly one terminal done or error frame.
func (h *Handlers) streamSummary(w http.ResponseWriter, r *http.Request, group, chatTitle string, msgs []db.Message, days int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeFrame := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	writeFrame(map[string]any{"type": "start", "group": chatTitle, "message_count": len(msgs)})

	ctx, span := telemetry.StartSpan(r.Context(), "summarize", "summary-stream")
	defer span.End()

	start := time.Now()
	chunks, err := h.summarizer.Stream(ctx, chatTitle, msgs)
	if err != nil {
		telemetry.SummariesFailed.Inc()
		telemetry.RecordError(span, err)
		telemetry.LoggerWithCorr(ctx).Error("summary stream start failed", slog.String("group", group), slog.Any("err", err))
		writeFrame(map[string]any{"type": "error", "message": err.Error()})
		return
	}

	var full string
	for chunk := range chunks {
		if chunk.Err != nil {
			telemetry.SummariesFailed.Inc()
			telemetry.RecordError(span, chunk.Err)
			telemetry.LoggerWithCorr(ctx).Error("summary stream failed", slog.String("group", group), slog.Any("err", chunk.Err))
			writeFrame(map[string]any{"type": "error", "message": chunk.Err.Error()})
			return
		}
		full += chunk.Content
		if !writeFrame(map[string]any{"type": "chunk", "content": chunk.Content}) {
			// client went away; fragment production stops with the request ctx
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if telemetry.SummaryDuration != nil {
		telemetry.SummaryDuration.Observe(time.Since(start).Seconds())
	}
	telemetry.SetSpanSuccess(span)

	rangeStart, rangeEnd := summarize.DateRange(msgs)
	writeFrame(map[string]any{
		"type":          "done",
		"summary":       full,
		"message_count": len(msgs),
		"date_range":    map[string]string{"start": rangeStart, "end": rangeEnd},
		"days":          days,
	})
}
