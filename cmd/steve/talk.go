package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
	"github.com/samcharles93/steve/internal/logger"
)

type chatCompleter interface {
	ChatCompletion(ctx context.Context, dialogs []dialog.Dialog, opts completion.Options) ([]completion.ChatPrediction, error)
}

// talkSession is one interactive conversation with Steve.
type talkSession struct {
	svc       chatCompleter
	opts      completion.Options
	userName  string
	sessionID string
	history   dialog.Dialog
	out       io.Writer
	log       logger.Logger
}

func newTalkSession(svc chatCompleter, opts completion.Options, userName string, out io.Writer, log logger.Logger) *talkSession {
	id := uuid.New()
	sessionID := hex.EncodeToString(id[:])
	return &talkSession{
		svc:       svc,
		opts:      opts,
		userName:  strings.TrimSpace(userName),
		sessionID: sessionID,
		out:       out,
		log:       log.With("session_id", sessionID),
	}
}

func (s *talkSession) show(role, content string) {
	var prefix string
	switch role {
	case "assistant":
		prefix = "Steve: "
	case "user":
		prefix = s.userName + ": "
	case "error":
		prefix = "ERROR: "
	default:
		prefix = role + ": "
	}
	content = strings.TrimSpace(content)
	if content == "" {
		content = "<empty message>"
	}
	_, _ = fmt.Fprintf(s.out, "%s%s\n", prefix, content)
	logger.Action(s.log, "show_message", content, "role", role, "user_name", s.userName)
}

// turn sends one user message and shows the reply. It reports false when
// the conversation cannot continue.
func (s *talkSession) turn(ctx context.Context, input string) (bool, error) {
	s.show("user", input)
	s.history = append(s.history, dialog.Message{
		Role:     dialog.RoleUser,
		Content:  strings.TrimSpace(input),
		DialogID: s.sessionID,
	})

	_, _ = fmt.Fprintln(s.out, "Generating response...")
	results, err := s.svc.ChatCompletion(ctx, []dialog.Dialog{s.history}, s.opts)
	switch {
	case errors.Is(err, dialog.ErrDialogOrder):
		s.log.Error("dialog order", "action", "chat_completion", "error", err, "error_type", "DialogOrderError")
		return false, nil
	case errors.Is(err, inference.ErrPromptTooLong):
		s.log.Error("prompt too long, can't deal with this", "action", "chat_completion", "error", err)
		_, _ = fmt.Fprintln(s.out, err)
		return false, nil
	case err != nil:
		return false, err
	}

	if len(results) == 0 {
		s.show("error", "There was no message in the response, this is a system error and I must shut down now!")
		return false, nil
	}
	if len(results) > 1 {
		s.show("error", "Got more than one response from the model, using the first one")
	}
	reply := results[0]
	logger.Action(s.log, "chat_completion", "reply received",
		"tokens", reply.Tokens,
		"completion_id", reply.CompletionID,
	)
	s.history = append(s.history, reply.Generation)
	s.show("assistant", reply.Generation.Content)
	return true, nil
}

// run reads user turns until EOF or a turn ends the conversation.
func (s *talkSession) run(ctx context.Context, lr *lineReader) error {
	for {
		input, err := lr.ReadLine("What do you want to say? ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			s.log.Info("empty input, skipping it", "action", "ask_for_input")
			continue
		}
		ok, err := s.turn(ctx, input)
		if err != nil || !ok {
			return err
		}
	}
}

func talkCmd() *cli.Command {
	return &cli.Command{
		Name:  "talk",
		Usage: "Chat with Steve interactively",
		Flags: generationFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			w := stdout(cmd)
			lr := newLineReader(os.Stdin, w)

			_, _ = fmt.Fprintln(w, "Hi, we're going to ask for your name, then we're going to start up the model, then start chatting.")
			prompt := "What's your name? "
			if loadedConfig.UserName != "" {
				prompt = fmt.Sprintf("What's your name? [%s] ", loadedConfig.UserName)
			}
			name, err := lr.ReadLine(prompt)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if strings.TrimSpace(name) == "" {
				name = loadedConfig.UserName
			}
			if strings.TrimSpace(name) == "" {
				name = "You"
			}

			logger.Action(log, "startup", "starting up", "backend", backend, "model_dir", loadedConfig.ModelDir)
			svc, err := buildService(ctx, cmd)
			if err != nil {
				return err
			}
			return newTalkSession(svc, completionOptions(), name, w, log).run(ctx, lr)
		},
	}
}
