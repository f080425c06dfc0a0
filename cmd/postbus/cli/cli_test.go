package cli

import (
	"context"
	"testing"
)

func TestExecute(t *testing.T) {
	var ran []string
	var verbose bool
	var count int

	root := &Command{Usage: "tool"}
	root.Flags().BoolVar(&verbose, "v", false, "verbose")
	sub := &Command{
		Usage: "sub <arg>...",
		Short: "a subcommand",
		Args:  MinArgs(1),
		Run: func(ctx context.Context, args []string) {
			ran = args
		},
	}
	sub.Flags().IntVar(&count, "n", 0, "count")
	root.AddCommand(sub)

	ctx := context.Background()
	if err := Execute(ctx, root, []string{"-v", "sub", "-n", "3", "a", "b"}); err != nil {
		t.Fatal(err)
	}
	if !verbose || count != 3 || len(ran) != 2 || ran[0] != "a" {
		t.Fatalf("unexpected state: verbose=%v count=%d args=%v", verbose, count, ran)
	}

	if err := Execute(ctx, root, []string{"sub"}); err == nil {
		t.Fatal("expected args error")
	}
	if err := Execute(ctx, root, []string{"nope"}); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := Execute(ctx, root, []string{"-bogus"}); err == nil {
		t.Fatal("expected flag error")
	}
	if err := Execute(ctx, root, nil); err != nil {
		t.Fatal(err)
	}
}

func TestArgs(t *testing.T) {
	cmd := &Command{Usage: "x"}
	for _, tt := range []struct {
		name  string
		check PositionalArgs
		n     int
		ok    bool
	}{
		{"min ok", MinArgs(1), 1, true},
		{"min short", MinArgs(2), 1, false},
		{"max ok", MaxArgs(1), 0, true},
		{"max long", MaxArgs(1), 2, false},
		{"exact ok", ExactArgs(2), 2, true},
		{"exact off", ExactArgs(2), 3, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(cmd, make([]string, tt.n))
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected result: %v", err)
			}
		})
	}
}
