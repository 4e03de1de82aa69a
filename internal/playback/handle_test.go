package playback

import "testing"

func TestResolvers(t *testing.T) {
	preview := "https://p.scdn.co/mp3-preview/abc?cid=1"

	tests := []struct {
		name     string
		resolver Resolver
		want     string
	}{
		{"direct", DirectResolver{}, preview},
		{"proxy", ProxyResolver{BaseURL: "http://localhost:8080"}, "http://localhost:8080/preview?url=https%3A%2F%2Fp.scdn.co%2Fmp3-preview%2Fabc%3Fcid%3D1"},
		{"proxy trailing slash", ProxyResolver{BaseURL: "http://localhost:8080/"}, "http://localhost:8080/preview?url=https%3A%2F%2Fp.scdn.co%2Fmp3-preview%2Fabc%3Fcid%3D1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resolver.Resolve(preview); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ErrorNone},
		{ErrNoPreviewAvailable, ErrorNoPreviewAvailable},
		{ErrPermissionDenied, ErrorPermissionDenied},
		{ErrUnsupportedFormat, ErrorUnsupportedFormat},
		{ErrClosed, ErrorGeneric},
	}

	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
