package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestComponentKeepsParentOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := log.New(&buf, "bridgewatch ", 0)

	child := Component(parent, "store")
	child.Printf("config updated")

	got := buf.String()
	if !strings.HasPrefix(got, "bridgewatch store ") {
		t.Fatalf("unexpected prefix in %q", got)
	}
	if !strings.Contains(got, "config updated") {
		t.Fatalf("expected message in %q", got)
	}
}
