package commands

import (
	"context"
	"strings"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/danmuck/donuts/internal/store"
)

// KV returns put/get/delete/list over s.
func KV(s *store.Store) []command.Command {
	key := schema.Prop("key", schema.String())
	return []command.Command{
		{
			Name: "kv-put",
			Args: schema.Object([]schema.Property{key, schema.Prop("value", schema.String())}, "key", "value"),
			Handler: func(ctx context.Context, args any, _ *command.Pipe) error {
				return s.Put(ctx, argString(args, "key"), argString(args, "value"))
			},
		},
		{
			Name: "kv-get",
			Args: schema.Object([]schema.Property{key}, "key"),
			Handler: func(ctx context.Context, args any, pipe *command.Pipe) error {
				v, err := s.Get(ctx, argString(args, "key"))
				if err != nil {
					return err
				}
				return pipe.Out.Send(v)
			},
		},
		{
			Name: "kv-delete",
			Args: schema.Object([]schema.Property{key}, "key"),
			Handler: func(ctx context.Context, args any, _ *command.Pipe) error {
				return s.Delete(ctx, argString(args, "key"))
			},
		},
		{
			Name: "kv-list",
			Args: schema.Object([]schema.Property{schema.Prop("prefix", schema.String())}),
			Handler: func(ctx context.Context, args any, pipe *command.Pipe) error {
				keys, err := s.List(ctx, argString(args, "prefix"))
				if err != nil || len(keys) == 0 {
					return err
				}
				return pipe.Out.Send(strings.Join(keys, "\n") + "\n")
			},
		},
	}
}
