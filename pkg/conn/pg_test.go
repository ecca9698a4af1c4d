package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
		err  bool
	}{
		{
			desc: "defaults",
			opt:  Option{Database: "journal"},
			want: "postgres://localhost:5432/journal?sslmode=disable",
		},
		{
			desc: "credentials and params",
			opt: Option{
				Host:     "db",
				Port:     6543,
				User:     "trader",
				Password: "secret",
				Database: "journal",
				SSLMode:  "require",
				Params:   map[string]string{"application_name": "eventtrader", "": "skip"},
			},
			want: "postgres://trader:secret@db:6543/journal?application_name=eventtrader&sslmode=require",
		},
		{
			desc: "conn string wins",
			opt:  Option{ConnString: "host=x dbname=y", Database: "ignored"},
			want: "host=x dbname=y",
		},
		{
			desc: "missing database",
			opt:  Option{Host: "db"},
			err:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.opt.dsn()
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://trader:xxxxx@db:5432/journal", redact("postgres://trader:secret@db:5432/journal"))
	assert.Equal(t, "host=x", redact("host=x"))
	assert.False(t, Option{}.Enabled())
	assert.True(t, Option{Database: "journal"}.Enabled())
}
