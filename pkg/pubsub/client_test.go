package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "cuidly-prod"}
	tests := []struct {
		in   string
		want string
	}{
		{"cuidly-billing-events", "projects/cuidly-prod/topics/cuidly-billing-events"},
		{"  cuidly-billing-events  ", "projects/cuidly-prod/topics/cuidly-billing-events"},
		{"projects/other/topics/billing", "projects/other/topics/billing"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.topicResourceName(tt.in); got != tt.want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := (&Client{}).topicResourceName("billing"); got != "" {
		t.Fatalf("expected empty name without a project, got %q", got)
	}
}
