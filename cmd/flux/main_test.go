package main

import "testing"

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, args := range [][]string{{"random"}, {"group", "room-1"}} {
		cmd, rest, err := root.Find(args)
		if err != nil {
			t.Fatalf("Find(%v): %v", args, err)
		}
		if cmd.Name() != args[0] {
			t.Errorf("Find(%v) = %s", args, cmd.Name())
		}
		if err := cmd.Args(cmd, rest); err != nil {
			t.Errorf("%s args %v rejected: %v", args[0], rest, err)
		}
	}

	group, _, _ := root.Find([]string{"group"})
	if err := group.Args(group, nil); err == nil {
		t.Error("group accepted a missing room id")
	}

	for _, name := range []string{"config", "signal", "ice", "stun", "offer-delay", "debug", "mute", "no-video"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s missing", name)
		}
	}
}
