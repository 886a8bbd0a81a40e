package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/audiodiary/internal/conversation"
	"github.com/ent0n29/audiodiary/internal/httpapi"
	"github.com/ent0n29/audiodiary/internal/protocol"
)

type replayOptions struct {
	baseURL     string
	userID      string
	turns       int
	texts       []string
	summarize   bool
	save        bool
	turnTimeout time.Duration
	verbose     bool
}

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// replayEvent is the union of server event fields the replay inspects.
type replayEvent struct {
	Type           protocol.MessageType `json:"type"`
	InitialMessage string               `json:"initial_message,omitempty"`
	Content        string               `json:"content,omitempty"`
	Summary        string               `json:"summary,omitempty"`
	Code           string               `json:"code,omitempty"`
	Detail         string               `json:"detail,omitempty"`
}

type replayReport struct {
	SessionID string
	Opening   time.Duration
	Turns     []time.Duration
	Summary   time.Duration
	Save      time.Duration
}

var defaultUtterances = []string{
	"I took a long walk by the river this morning.",
	"Lunch with an old friend, we talked for hours.",
	"Work was busy but I finished the report.",
	"Now I am tired but content.",
}

func newReplayCmd() *cobra.Command {
	var (
		opts     replayOptions
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scripted conversation against a running server and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.texts = splitUtterances(textsRaw)
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
			defer cancel()
			report, err := runReplay(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "diaryd base URL")
	cmd.Flags().StringVar(&opts.userID, "user-id", "replay", "user_id used for the synthetic session")
	cmd.Flags().IntVar(&opts.turns, "turns", 4, "number of messages to send")
	cmd.Flags().StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	cmd.Flags().BoolVar(&opts.summarize, "summarize", true, "summarize after the last turn")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the summary as a diary entry")
	cmd.Flags().DurationVar(&opts.turnTimeout, "turn-timeout", 90*time.Second, "timeout waiting for each server event")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print each exchange")
	return cmd
}

func splitUtterances(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...)
	}
	return pie.Filter(pie.Map(strings.Split(raw, "|"), strings.TrimSpace), func(s string) bool {
		return s != ""
	})
}

func (o *replayOptions) validate() error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if o.turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if len(o.texts) == 0 {
		return fmt.Errorf("texts produced no non-empty utterances")
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}
	if o.save && !o.summarize {
		return fmt.Errorf("save requires summarize")
	}
	return nil
}

func runReplay(ctx context.Context, opts replayOptions, out io.Writer) (replayReport, error) {
	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, opts)
	if err != nil {
		return replayReport{}, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, opts.baseURL, sessionID)
	}()
	report := replayReport{SessionID: sessionID}

	wsURL, err := wsURLForSession(opts.baseURL, sessionID)
	if err != nil {
		return report, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	exchange := func(msg any, want protocol.MessageType) (replayEvent, time.Duration, error) {
		start := time.Now()
		if err := conn.WriteJSON(msg); err != nil {
			return replayEvent{}, 0, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.turnTimeout))
		var ev replayEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return replayEvent{}, 0, err
		}
		elapsed := time.Since(start)
		if ev.Type == protocol.TypeErrorEvent {
			return ev, elapsed, fmt.Errorf("error_event code=%s detail=%s", ev.Code, ev.Detail)
		}
		if ev.Type != want {
			return ev, elapsed, fmt.Errorf("got %s, want %s", ev.Type, want)
		}
		return ev, elapsed, nil
	}

	ev, elapsed, err := exchange(protocol.SetContext{
		Type: protocol.TypeSetContext,
		Context: conversation.Context{
			Date:      time.Now().UTC(),
			TimeOfDay: "evening",
			Location:  "home",
			Companion: "alone",
			Mood:      "calm",
		},
	}, protocol.TypeOpening)
	if err != nil {
		return report, fmt.Errorf("set_context: %w", err)
	}
	report.Opening = elapsed
	if opts.verbose {
		fmt.Fprintf(out, "replay: opening %q (%s)\n", ev.InitialMessage, elapsed.Round(time.Millisecond))
	}

	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		ev, elapsed, err := exchange(protocol.Message{Type: protocol.TypeMessage, Content: text}, protocol.TypeReply)
		if err != nil {
			return report, fmt.Errorf("turn %d: %w", i+1, err)
		}
		report.Turns = append(report.Turns, elapsed)
		if opts.verbose {
			fmt.Fprintf(out, "replay: turn %d/%d %q -> %q (%s)\n", i+1, opts.turns, text, ev.Content, elapsed.Round(time.Millisecond))
		}
	}

	if opts.summarize {
		ev, elapsed, err := exchange(protocol.Summarize{Type: protocol.TypeSummarize}, protocol.TypeSummary)
		if err != nil {
			return report, fmt.Errorf("summarize: %w", err)
		}
		report.Summary = elapsed
		if opts.verbose {
			fmt.Fprintf(out, "replay: summary (%s)\n%s\n", elapsed.Round(time.Millisecond), ev.Summary)
		}
	}
	if opts.save {
		_, elapsed, err := exchange(protocol.Save{Type: protocol.TypeSave}, protocol.TypeSaved)
		if err != nil {
			return report, fmt.Errorf("save: %w", err)
		}
		report.Save = elapsed
	}
	return report, nil
}

func printReport(w io.Writer, r replayReport) {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	fmt.Fprintf(w, "session=%s\n", r.SessionID)
	fmt.Fprintf(w, "opening_ms=%.1f\n", ms(r.Opening))
	if len(r.Turns) > 0 {
		sorted := pie.SortUsing(r.Turns, func(a, b time.Duration) bool { return a < b })
		fmt.Fprintf(w, "turns=%d reply_min_ms=%.1f reply_max_ms=%.1f reply_avg_ms=%.1f\n",
			len(sorted), ms(sorted[0]), ms(sorted[len(sorted)-1]), ms(pie.Sum(sorted)/time.Duration(len(sorted))))
	}
	if r.Summary > 0 {
		fmt.Fprintf(w, "summary_ms=%.1f\n", ms(r.Summary))
	}
	if r.Save > 0 {
		fmt.Fprintf(w, "save_ms=%.1f\n", ms(r.Save))
	}
}

func createSession(ctx context.Context, client *http.Client, opts replayOptions) (string, error) {
	payload, err := json.Marshal(createSessionRequest{UserID: opts.userID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/chat/session", nil)
	if err != nil {
		return err
	}
	req.Header.Set(httpapi.SessionHeader, sessionID)
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chat/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
