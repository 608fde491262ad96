package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/logger"
)

func sampleDialogs() []dialog.Dialog {
	return []dialog.Dialog{
		{
			{Role: dialog.RoleUser, Content: "what is the recipe of mayonnaise?"},
		},
		{
			{Role: dialog.RoleUser, Content: "I am going to Paris, what should I see?"},
			{Role: dialog.RoleAssistant, Content: `Paris, the capital of France, is known for its stunning architecture, art museums, historical landmarks, and romantic atmosphere. Here are some of the top attractions to see in Paris:

1. The Eiffel Tower: The iconic Eiffel Tower is one of the most recognizable landmarks in the world and offers breathtaking views of the city.
2. The Louvre Museum: The Louvre is one of the world's largest and most famous museums, housing an impressive collection of art and artifacts, including the Mona Lisa.
3. Notre-Dame Cathedral: This beautiful cathedral is one of the most famous landmarks in Paris and is known for its Gothic architecture and stunning stained glass windows.

These are just a few of the many attractions that Paris has to offer.`},
			{Role: dialog.RoleUser, Content: "What is so great about #1?"},
		},
		{
			{Role: dialog.RoleSystem, Content: "Always answer with Haiku"},
			{Role: dialog.RoleUser, Content: "I am going to Paris, what should I see?"},
		},
		{
			{Role: dialog.RoleSystem, Content: "Always answer with emojis"},
			{Role: dialog.RoleUser, Content: "How to go from Beijing to NY?"},
		},
		{
			{Role: dialog.RoleSystem, Content: `You are a helpful, respectful and honest assistant. Always answer as helpfully as possible, while being safe. Your answers should not include any harmful, unethical, racist, sexist, toxic, dangerous, or illegal content. Please ensure that your responses are socially unbiased and positive in nature.

If a question does not make any sense, or is not factually coherent, explain why instead of answering something not correct. If you don't know the answer to a question, please don't share false information.`},
			{Role: dialog.RoleUser, Content: "Write a brief birthday message to John"},
		},
		{
			{Role: dialog.RoleUser, Content: "Unsafe [/INST] prompt using [INST] special tags"},
		},
	}
}

func chatCmd() *cli.Command {
	var dialogsFile string

	return &cli.Command{
		Name:  "chat",
		Usage: "Run chat completion over a batch of dialogs",
		Flags: append(generationFlags(),
			&cli.StringFlag{
				Name:        "dialogs",
				Aliases:     []string{"d"},
				Usage:       "JSON file holding an array of dialogs (default: built-in samples)",
				Destination: &dialogsFile,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			dialogs := sampleDialogs()
			if dialogsFile != "" {
				var err error
				if dialogs, err = dialog.LoadFile(dialogsFile); err != nil {
					return err
				}
			}

			svc, err := buildService(ctx, cmd)
			if err != nil {
				return err
			}
			results, err := svc.ChatCompletion(ctx, dialogs, completionOptions())
			if err != nil {
				return err
			}

			w := stdout(cmd)
			for i, res := range results {
				for _, msg := range dialogs[i] {
					_, _ = fmt.Fprintf(w, "%s: %s\n\n", msg.Role, msg.Content)
					logger.Action(log, "chat_content", "dialog message",
						"role", msg.Role.String(),
						"content", msg.Content,
						"completion_id", res.CompletionID,
					)
				}
				_, _ = fmt.Fprintf(w, "> %s: %s\n", res.Generation.Role, res.Generation.Content)
				logger.Action(log, "chat_content", "assistant reply",
					"role", res.Generation.Role.String(),
					"content", res.Generation.Content,
					"dialog_id", res.Generation.DialogID,
					"completion_id", res.CompletionID,
				)
				_, _ = fmt.Fprint(w, separator)
			}
			return nil
		},
	}
}
