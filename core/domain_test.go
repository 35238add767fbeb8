package core

import "testing"

func TestSendPolicyValidate(t *testing.T) {
	valid := SendPolicy{
		OwnerID:                 "owner-1",
		MaxRecipientsPerMessage: 10,
		PerMinuteLimit:          5,
		DailyCap:                100,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid policy: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SendPolicy)
	}{
		{"blank owner", func(p *SendPolicy) { p.OwnerID = "  " }},
		{"zero max recipients", func(p *SendPolicy) { p.MaxRecipientsPerMessage = 0 }},
		{"zero per-minute limit", func(p *SendPolicy) { p.PerMinuteLimit = 0 }},
		{"negative daily cap", func(p *SendPolicy) { p.DailyCap = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := valid
			tt.mutate(&policy)
			if err := policy.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestJobTypeValidate(t *testing.T) {
	for _, jobType := range KnownJobTypes() {
		if err := jobType.Validate(); err != nil {
			t.Fatalf("expected %q to validate: %v", string(jobType), err)
		}
	}
	if err := JobType("sendgate.unknown").Validate(); err == nil {
		t.Fatalf("expected unknown job type to fail validation")
	}
}
