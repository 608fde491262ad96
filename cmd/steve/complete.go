package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

var samplePrompts = []string{
	"I believe the meaning of life is",
	"Simply put, the theory of relativity states that ",
	`A brief message congratulating the team on the launch:

        Hi everyone,

        I just `,
	`Translate English to French:

        sea otter => loutre de mer
        peppermint => menthe poivrée
        plush girafe => girafe peluche
        cheese =>`,
}

func completeCmd() *cli.Command {
	var (
		logProbs bool
		echo     bool
	)

	return &cli.Command{
		Name:      "complete",
		Usage:     "Complete text prompts",
		ArgsUsage: "[prompt...]",
		Flags: append(generationFlags(),
			&cli.BoolFlag{
				Name:        "logprobs",
				Usage:       "print per-token log-probabilities",
				Destination: &logProbs,
			},
			&cli.BoolFlag{
				Name:        "echo",
				Usage:       "include the prompt in the output",
				Destination: &echo,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, err := buildService(ctx, cmd)
			if err != nil {
				return err
			}

			prompts := cmd.Args().Slice()
			if len(prompts) == 0 {
				prompts = samplePrompts
			}
			opts := completionOptions()
			opts.LogProbs = logProbs
			opts.Echo = echo

			results, err := svc.TextCompletion(ctx, prompts, opts)
			if err != nil {
				return err
			}

			w := stdout(cmd)
			for i, res := range results {
				_, _ = fmt.Fprintln(w, prompts[i])
				_, _ = fmt.Fprintf(w, "> %s\n", res.Generation)
				if logProbs {
					for j, piece := range res.Tokens {
						if j < len(res.LogProbs) {
							_, _ = fmt.Fprintf(w, "  %-16q %8.4f\n", piece, res.LogProbs[j])
						}
					}
				}
				_, _ = fmt.Fprint(w, separator)
			}
			return nil
		},
	}
}
