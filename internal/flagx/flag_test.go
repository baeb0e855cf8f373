package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept as-is",
			args:         []string{"-c"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "next dash-starting token is not a value",
			args:         []string{"-c", "--config=alt.json"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "--config=alt.json"},
		},
		{
			name:         "value with equals inside",
			args:         []string{"-token-env=A=B"},
			allowedFlags: []string{"-token-env"},
			want:         []string{"-token-env=A=B"},
		},
		{
			name:         "repeated allowed flag is preserved in order",
			args:         []string{"-db", "one.db", "-db", "two.db"},
			allowedFlags: []string{"-db"},
			want:         []string{"-db", "one.db", "-db", "two.db"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/path/short.json", ConfigPath([]string{"-c", "/path/short.json"}))
	assert.Equal(t, "/path/long.json", ConfigPath([]string{"-config", "/path/long.json", "-a", "x:1"}))
	assert.Equal(t, "/path/2.json", ConfigPath([]string{"-c", "/path/1.json", "-config", "/path/2.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1", "-y", "2"}))
}
