// Package mcp exposes the voice session as an MCP server over stdio.
//
// Agents connect with the standard Model Context Protocol handshake and get
// three tools: voice_listen records and transcribes one utterance,
// voice_speak synthesises and plays text, and voice_status reports whether a
// session currently holds the machine-wide lock. Tool calls are serialised by
// the session mutex, so concurrent agents degrade to "line busy" errors
// instead of fighting over the microphone.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voicewire/voicewire/internal/app"
	"github.com/voicewire/voicewire/internal/lock"
	"github.com/voicewire/voicewire/internal/record"
)

// ListenArgs are the arguments of the voice_listen tool.
type ListenArgs struct {
	// TimeoutSeconds caps the recording wall time. Zero uses the configured
	// default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"maximum recording duration in seconds"`

	// SilenceMode selects how much trailing silence ends the recording:
	// quick, standard or thoughtful.
	SilenceMode string `json:"silence_mode,omitempty" jsonschema:"silence auto-stop profile: quick, standard or thoughtful"`

	// PushToTalk disables silence auto-stop; only an explicit stop or the
	// timeout ends the recording.
	PushToTalk bool `json:"push_to_talk,omitempty" jsonschema:"disable silence-based auto-stop"`
}

// ListenResult is the structured output of voice_listen.
type ListenResult struct {
	Text       string `json:"text"`
	NoSpeech   bool   `json:"no_speech"`
	Reason     string `json:"reason"`
	DurationMS int64  `json:"duration_ms"`
}

// SpeakArgs are the arguments of the voice_speak tool.
type SpeakArgs struct {
	Text string `json:"text" jsonschema:"the text to speak aloud"`
}

// SpeakResult is the structured output of voice_speak.
type SpeakResult struct {
	Spoken bool `json:"spoken"`
}

// StatusResult is the structured output of voice_status.
type StatusResult struct {
	Busy         bool   `json:"busy"`
	OwnerPID     int    `json:"owner_pid,omitempty"`
	OwnerSession string `json:"owner_session,omitempty"`
}

// Server wraps an app.Session as an MCP stdio server.
type Server struct {
	session *app.Session
	srv     *mcpsdk.Server
}

// NewServer builds the MCP server and registers the voice tools.
func NewServer(session *app.Session, version string) *Server {
	s := &Server{session: session}
	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "voicewire", Version: version}, nil)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "voice_listen",
		Description: "Record one spoken utterance from the microphone and return its transcript. Blocks until the speaker pauses, an observer sends stop, or the timeout fires.",
	}, s.listen)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "voice_speak",
		Description: "Synthesise the given text and play it on the default audio output. Blocks until playback finishes or is interrupted.",
	}, s.speak)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "voice_status",
		Description: "Report whether a voice session currently holds the machine-wide lock and who owns it.",
	}, s.status)

	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) listen(ctx context.Context, _ *mcpsdk.CallToolRequest, args ListenArgs) (*mcpsdk.CallToolResult, ListenResult, error) {
	opts := app.ListenOptions{
		Timeout:    time.Duration(args.TimeoutSeconds) * time.Second,
		PushToTalk: args.PushToTalk,
	}
	if args.SilenceMode != "" {
		mode := record.SilenceMode(args.SilenceMode)
		if !mode.IsValid() {
			return nil, ListenResult{}, fmt.Errorf("unknown silence_mode %q (use quick, standard or thoughtful)", args.SilenceMode)
		}
		opts.SilenceMode = mode
	}

	res, err := s.session.Listen(ctx, opts)
	if err != nil {
		return nil, ListenResult{}, busyOrErr(err)
	}
	return nil, ListenResult{
		Text:       res.Text,
		NoSpeech:   res.NoSpeech,
		Reason:     string(res.Reason),
		DurationMS: res.Duration.Milliseconds(),
	}, nil
}

func (s *Server) speak(ctx context.Context, _ *mcpsdk.CallToolRequest, args SpeakArgs) (*mcpsdk.CallToolResult, SpeakResult, error) {
	if args.Text == "" {
		return nil, SpeakResult{}, errors.New("text must not be empty")
	}
	if err := s.session.Speak(ctx, args.Text); err != nil {
		return nil, SpeakResult{}, busyOrErr(err)
	}
	return nil, SpeakResult{Spoken: true}, nil
}

func (s *Server) status(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, StatusResult, error) {
	st := s.session.Status()
	out := StatusResult{Busy: st.Busy}
	if st.Owner != nil {
		out.OwnerPID = st.Owner.PID
		out.OwnerSession = st.Owner.SessionID
	}
	return nil, out, nil
}

// busyOrErr rewrites a busy-lock failure into a message an agent can act on;
// other errors pass through unchanged.
func busyOrErr(err error) error {
	var busy *lock.BusyError
	if errors.As(err, &busy) {
		return fmt.Errorf("voice line busy: %s (retry after the owning session finishes)", busy.Error())
	}
	return err
}
