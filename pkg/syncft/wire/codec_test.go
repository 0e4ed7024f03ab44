package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeIsExternallyTagged(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "request",
			msg:  RequestMsg{ContentHash: "abc", DeclaredSize: 1000, Name: "f", Directory: "/"},
			want: `{"Request":{"content_hash":"abc","declared_size":1000,"name":"f","directory":"/"}}`,
		},
		{
			name: "response",
			msg:  ResponseMsg{ContentHash: "abc", SyncedSize: 400},
			want: `{"Response":{"content_hash":"abc","synced_size":400}}`,
		},
		{
			name: "delete without path",
			msg:  DeleteMsg{ContentHash: "abc", SyncedSize: 0},
			want: `{"Delete":{"content_hash":"abc","synced_size":0}}`,
		},
		{
			name: "error",
			msg:  ErrorMsg{Message: "boom"},
			want: `{"Error":{"message":"boom"}}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := Encode(test.msg)
			require.NoError(t, err)
			require.JSONEq(t, test.want, string(b))

			decoded, err := Decode(b)
			require.NoError(t, err)
			require.Equal(t, test.msg, decoded)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	inputs := map[string]string{
		"not json":           `{"Request":`,
		"array":              `[1,2]`,
		"string":             `"Request"`,
		"empty object":       `{}`,
		"two tags":           `{"Request":{},"Response":{}}`,
		"unknown tag":        `{"Upload":{"content_hash":"abc"}}`,
		"null payload":       `{"Request":null}`,
		"unknown field":      `{"Response":{"content_hash":"abc","synced_size":1,"extra":true}}`,
		"negative size":      `{"Request":{"content_hash":"abc","declared_size":-1,"name":"f","directory":"/"}}`,
		"fractional size":    `{"Response":{"content_hash":"abc","synced_size":1.5}}`,
		"wrong payload type": `{"Error":"boom"}`,
		"empty":              ``,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			msg, err := Decode([]byte(input))
			require.ErrorIs(t, err, ErrMalformedMessage)
			require.Nil(t, msg)
		})
	}
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     RequestMsg
		wantErr bool
		wantDir string
	}{
		{name: "default directory", req: RequestMsg{ContentHash: "abc", Name: "f"}, wantDir: "/"},
		{name: "relative directory is rooted", req: RequestMsg{ContentHash: "abc", Name: "f", Directory: "docs/"}, wantDir: "/docs"},
		{name: "dot segments cleaned", req: RequestMsg{ContentHash: "abc", Name: "f", Directory: "/a/../../b"}, wantDir: "/b"},
		{name: "short hash", req: RequestMsg{ContentHash: "ab", Name: "f"}, wantErr: true},
		{name: "hash with slash", req: RequestMsg{ContentHash: "ab/cd", Name: "f"}, wantErr: true},
		{name: "empty name", req: RequestMsg{ContentHash: "abc"}, wantErr: true},
		{name: "name with slash", req: RequestMsg{ContentHash: "abc", Name: "a/b"}, wantErr: true},
		{name: "dot dot name", req: RequestMsg{ContentHash: "abc", Name: ".."}, wantErr: true},
		{name: "largest size", req: RequestMsg{ContentHash: "abc", Name: "f", DeclaredSize: math.MaxInt64}, wantDir: "/"},
		{name: "size past int64", req: RequestMsg{ContentHash: "abc", Name: "f", DeclaredSize: math.MaxInt64 + 1}, wantErr: true},
		{name: "max uint64 size", req: RequestMsg{ContentHash: "abc", Name: "f", DeclaredSize: math.MaxUint64}, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := test.req
			err := req.Validate(2)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.wantDir, req.Directory)
		})
	}
}

func TestDeleteValidate(t *testing.T) {
	d := DeleteMsg{ContentHash: "abc"}
	require.NoError(t, d.Validate(2))
	require.False(t, d.HasPath())

	d = DeleteMsg{ContentHash: "abc", Name: "f"}
	require.NoError(t, d.Validate(2))
	require.True(t, d.HasPath())
	require.Equal(t, "/", d.Directory)

	d = DeleteMsg{ContentHash: "abc", Directory: "/x"}
	require.Error(t, d.Validate(2))

	for _, name := range []string{".", "..", "a/b"} {
		d = DeleteMsg{ContentHash: "abc", Name: name}
		require.Error(t, d.Validate(2), name)
	}
}
