package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/rs/zerolog"
)

// Core returns echo, which writes its arguments as JSON and then repeats
// every input chunk until end of input.
func Core(logger zerolog.Logger) []command.Command {
	return []command.Command{{
		Name: "echo",
		Args: schema.Any(),
		Handler: func(ctx context.Context, args any, pipe *command.Pipe) error {
			raw, err := json.Marshal(args)
			if err != nil {
				return err
			}
			if err := pipe.Out.Send(string(raw)); err != nil {
				return err
			}
			for {
				data, err := pipe.In.Recv(ctx)
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				logger.Trace().Int("bytes", len(data)).Msg("echo")
				if err := pipe.Out.Send(data); err != nil {
					return err
				}
			}
		},
	}}
}
