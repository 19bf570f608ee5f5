package app

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", nil, CommandServe},
		{"空文字はserve", []string{""}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"version", []string{"version"}, CommandVersion},
		{"余分な引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	_, err := ParseCommand([]string{"serv"})
	if err == nil {
		t.Fatal("ParseCommand([serv]) should return error")
	}
	if !strings.Contains(err.Error(), `unknown command "serv"`) {
		t.Errorf("error = %q, want unknown command message", err.Error())
	}
	if !strings.Contains(err.Error(), "usage: memoman") {
		t.Errorf("error should include usage, got %q", err.Error())
	}
}

func TestUsage_ListsAllCommands(t *testing.T) {
	usage := Usage()
	for _, cmd := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandVersion} {
		if !strings.Contains(usage, "  "+string(cmd)+" ") {
			t.Errorf("Usage() should list %q:\n%s", cmd, usage)
		}
	}
}
