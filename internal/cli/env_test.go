package cli

import (
	"reflect"
	"testing"
)

func TestForwardedEnv(t *testing.T) {
	environ := []string{
		"ZOWE_OPT_HOST=mf.example.com",
		"ZOWE_OPT_PORT=443",
		"HOME=/home/me",
		"ZOWE_EMPTY=",
		"ZOWE_EQ=a=b",
		"=broken",
		"noequals",
		"MY_APP_TOKEN=t",
	}

	tests := []struct {
		name     string
		prefixes []string
		want     map[string]string
	}{
		{
			name:     "zowe prefix",
			prefixes: []string{"ZOWE_"},
			want: map[string]string{
				"ZOWE_OPT_HOST": "mf.example.com",
				"ZOWE_OPT_PORT": "443",
				"ZOWE_EMPTY":    "",
				"ZOWE_EQ":       "a=b",
			},
		},
		{
			name:     "multiple prefixes",
			prefixes: []string{"ZOWE_OPT_", "MY_APP_"},
			want: map[string]string{
				"ZOWE_OPT_HOST": "mf.example.com",
				"ZOWE_OPT_PORT": "443",
				"MY_APP_TOKEN":  "t",
			},
		},
		{
			name:     "no prefixes",
			prefixes: nil,
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := forwardedEnv(environ, tt.prefixes); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("forwardedEnv() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
