package main

import (
	"bytes"
	"testing"
)

func TestDoListErrorsOnMissingConfig(t *testing.T) {
	var out bytes.Buffer
	if err := doList([]string{"--config", "/nonexistent/config.yaml", "--wait", "1ms"}, &out); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
