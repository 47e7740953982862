package query

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "single part",
			key:  K("agents"),
			want: "agents",
		},
		{
			name: "string and int",
			key:  K("agent", 7),
			want: "agent:7",
		},
		{
			name: "int64 part",
			key:  K("agent", int64(42)),
			want: "agent:42",
		},
		{
			name: "bool part",
			key:  K("agents", true),
			want: "agents:true",
		},
		{
			name: "empty key",
			key:  K(),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{
			name: "structurally equal",
			a:    K("agent", 7),
			b:    K("agent", 7),
			want: true,
		},
		{
			name: "equal across integer widths",
			a:    K("agent", int32(7)),
			b:    K("agent", int64(7)),
			want: true,
		},
		{
			name: "different value",
			a:    K("agent", 7),
			b:    K("agent", 8),
			want: false,
		},
		{
			name: "different length",
			a:    K("agent"),
			b:    K("agent", 7),
			want: false,
		},
		{
			name: "different identity same content",
			a:    K("agents"),
			b:    Key{"agents"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_HasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{
			name:   "key is prefix of itself",
			key:    K("agent", 7),
			prefix: K("agent", 7),
			want:   true,
		},
		{
			name:   "leading part matches",
			key:    K("agent", 7),
			prefix: K("agent"),
			want:   true,
		},
		{
			name:   "part-wise not string-wise",
			key:    K("agents"),
			prefix: K("agent"),
			want:   false,
		},
		{
			name:   "prefix longer than key",
			key:    K("agent"),
			prefix: K("agent", 7),
			want:   false,
		},
		{
			name:   "mismatched part",
			key:    K("agent", 7),
			prefix: K("task"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.HasPrefix(tt.prefix); got != tt.want {
				t.Errorf("HasPrefix() = %v, want %v", got, tt.want)
			}
		})
	}
}
