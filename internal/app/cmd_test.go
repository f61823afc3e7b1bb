package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{nil, CommandHelp},
		{[]string{}, CommandHelp},
		{[]string{"help"}, CommandHelp},
		{[]string{"--help"}, CommandHelp},
		{[]string{"me"}, CommandMe},
		{[]string{"history", "--height", "10"}, CommandHistory},
		{[]string{"checkin", "--note", "hi"}, CommandCheckin},
		{[]string{"edit", "5"}, CommandEdit},
		{[]string{"delete", "5"}, CommandDelete},
		{[]string{"tags"}, CommandTags},
		{[]string{"proxy"}, CommandProxy},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"serve"}, CommandUnknown},
		{[]string{"--note"}, CommandUnknown},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
